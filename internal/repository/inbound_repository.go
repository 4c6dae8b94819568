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

type inboundRepository struct {
	db sqlx.ExtContext
}

func NewInboundRepository(db sqlx.ExtContext) InboundRepository {
	return &inboundRepository{
		db: db,
	}
}

// Record inserts the event. The unique (instance_id, provider_message_id)
// constraint turns a redelivered notification into a no-op.
func (r *inboundRepository) Record(ctx context.Context, event *models.InboundEvent) (bool, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO inbound_events (instance_id, provider_message_id, sender_id, text, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instance_id, provider_message_id) DO NOTHING
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		event.InstanceID, event.ProviderMessageID, event.SenderID, event.Text, event.ReceivedAt, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record inbound event: %w", err)
	}

	return true, nil
}
