package models

import (
	"database/sql"
	"time"
)

// AutoReplyRule maps a trigger to a canned response.
type AutoReplyRule struct {
	ID               int64          `db:"id" json:"id"`
	InstanceID       sql.NullString `db:"instance_id" json:"instance_id,omitempty"`
	TriggerText      string         `db:"trigger_text" json:"trigger_text"`
	CaseSensitive    bool           `db:"case_sensitive" json:"case_sensitive"`
	ExactMatch       bool           `db:"exact_match" json:"exact_match"`
	ResponseText     string         `db:"response_text" json:"response_text"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	Priority         int            `db:"priority" json:"priority"`
	MaxUsesPerDay    sql.NullInt64  `db:"max_uses_per_day" json:"max_uses_per_day,omitempty"`
	CurrentUsesToday int            `db:"current_uses_today" json:"current_uses_today"`
	LastUsedAt       sql.NullTime   `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// UsesOn returns the usage count for the day starting at dayStart. The
// stored counter belongs to the day of LastUsedAt, so a rule last used
// before dayStart has no uses yet.
func (r *AutoReplyRule) UsesOn(dayStart time.Time) int {
	if !r.LastUsedAt.Valid || r.LastUsedAt.Time.Before(dayStart) {
		return 0
	}
	return r.CurrentUsesToday
}

// CapReached reports whether the daily cap excludes the rule for the day
// starting at dayStart.
func (r *AutoReplyRule) CapReached(dayStart time.Time) bool {
	if !r.MaxUsesPerDay.Valid {
		return false
	}
	return int64(r.UsesOn(dayStart)) >= r.MaxUsesPerDay.Int64
}
