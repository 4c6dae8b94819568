package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/popeskul/chatrelay/internal/models"
)

type ruleRepository struct {
	db sqlx.ExtContext
}

func NewRuleRepository(db sqlx.ExtContext) RuleRepository {
	return &ruleRepository{
		db: db,
	}
}

// ListEnabled returns enabled rules scoped to the instance plus global rules,
// in precedence order.
func (r *ruleRepository) ListEnabled(ctx context.Context, instanceID string) ([]*models.AutoReplyRule, error) {
	query := `
		SELECT id, instance_id, trigger_text, case_sensitive, exact_match, response_text, enabled,
		       priority, max_uses_per_day, current_uses_today, last_used_at, created_at, updated_at
		FROM auto_reply_rules
		WHERE enabled AND (instance_id IS NULL OR instance_id = $1)
		ORDER BY priority ASC, id DESC
	`

	var rules []*models.AutoReplyRule
	if err := sqlx.SelectContext(ctx, r.db, &rules, query, instanceID); err != nil {
		return nil, fmt.Errorf("failed to list auto-reply rules: %w", err)
	}

	return rules, nil
}

// RecordUse bumps the usage counter. The counter restarts at 1 on the first
// use of a new day; the WHERE clause enforces the daily cap so concurrent
// evaluations cannot overshoot it.
func (r *ruleRepository) RecordUse(ctx context.Context, id int64, dayStart, now time.Time) (bool, error) {
	query := `
		UPDATE auto_reply_rules
		SET current_uses_today = CASE
		        WHEN last_used_at IS NULL OR last_used_at < $2 THEN 1
		        ELSE current_uses_today + 1
		    END,
		    last_used_at = $3,
		    updated_at = $3
		WHERE id = $1
		  AND enabled
		  AND (max_uses_per_day IS NULL
		       OR last_used_at IS NULL
		       OR last_used_at < $2
		       OR current_uses_today < max_uses_per_day)
	`

	res, err := r.db.ExecContext(ctx, query, id, dayStart, now)
	if err != nil {
		return false, fmt.Errorf("failed to record rule use: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record rule use: %w", err)
	}

	return n > 0, nil
}
