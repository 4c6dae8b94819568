package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/popeskul/chatrelay/internal/models"
)

const instanceColumns = `id, api_token, base_url, state, enabled, suspended, backoff_level,
	next_eligible_at, created_at, updated_at`

type instanceRepository struct {
	db sqlx.ExtContext
}

func NewInstanceRepository(db sqlx.ExtContext) InstanceRepository {
	return &instanceRepository{
		db: db,
	}
}

// Get returns a single instance.
func (r *instanceRepository) Get(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`

	var inst models.Instance
	if err := sqlx.GetContext(ctx, r.db, &inst, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return &inst, nil
}

// ListEnabled returns every instance that should have a dispatcher worker.
func (r *instanceRepository) ListEnabled(ctx context.Context) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE enabled ORDER BY id`

	var instances []*models.Instance
	if err := sqlx.SelectContext(ctx, r.db, &instances, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled instances: %w", err)
	}

	return instances, nil
}

// UpdateState stores the connection state reported by the gateway.
func (r *instanceRepository) UpdateState(ctx context.Context, id string, state models.InstanceState) error {
	query := `UPDATE instances SET state = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update instance state", query, id, state, time.Now())
}

// UpdateBackoff persists the rate limiter state of an instance.
func (r *instanceRepository) UpdateBackoff(ctx context.Context, id string, level int, nextEligibleAt *time.Time) error {
	var next sql.NullTime
	if nextEligibleAt != nil {
		next = sql.NullTime{
			Time:  *nextEligibleAt,
			Valid: true,
		}
	}

	query := `
		UPDATE instances
		SET backoff_level = $2,
		    next_eligible_at = $3,
		    updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "update instance backoff", query, id, level, next, time.Now())
}

// SetSuspended toggles administrative suspension.
func (r *instanceRepository) SetSuspended(ctx context.Context, id string, suspended bool) error {
	query := `UPDATE instances SET suspended = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "set instance suspension", query, id, suspended, time.Now())
}

func (r *instanceRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
