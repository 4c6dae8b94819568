package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

// Ingest normalizes an incoming message notification and records it. A
// notification whose message id was already recorded for the instance
// yields nil, nil. Malformed input returns an error wrapping ErrMalformed.
func Ingest(ctx context.Context, repo repository.InboundRepository, n *Notification, now time.Time) (*models.InboundEvent, error) {
	event, err := n.InboundEvent(now)
	if err != nil {
		return nil, err
	}

	inserted, err := repo.Record(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to record inbound event: %w", err)
	}
	if !inserted {
		return nil, nil
	}

	return event, nil
}
