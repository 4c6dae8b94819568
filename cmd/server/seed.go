package main

import (
	"database/sql"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository/memory"
)

// seedMemory loads instances and rules from the configuration. Instances
// start disconnected until the first state poll.
func seedMemory(store *memory.Store, seed config.SeedConfig) {
	for _, si := range seed.Instances {
		store.PutInstance(&models.Instance{
			ID:       si.ID,
			APIToken: si.APIToken,
			BaseURL:  si.BaseURL,
			Enabled:  si.Enabled,
			State:    models.InstanceStateDisconnected,
		})
	}

	for _, sr := range seed.Rules {
		rule := &models.AutoReplyRule{
			TriggerText:   sr.Trigger,
			ResponseText:  sr.Response,
			CaseSensitive: sr.CaseSensitive,
			ExactMatch:    sr.ExactMatch,
			Priority:      sr.Priority,
			Enabled:       true,
		}
		if sr.InstanceID != "" {
			rule.InstanceID = sql.NullString{String: sr.InstanceID, Valid: true}
		}
		if sr.MaxUsesPerDay > 0 {
			rule.MaxUsesPerDay = sql.NullInt64{Int64: int64(sr.MaxUsesPerDay), Valid: true}
		}
		store.AddRule(rule)
	}
}
