package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/popeskul/chatrelay/internal/models"
)

const messageColumns = `id, instance_id, destination, message_type, content, payload, priority, status,
	attempt_count, last_error, provider_message_id, scheduled_at, claimed_at, claimed_by,
	sent_at, delivered_at, read_at, created_at, updated_at`

type messageRepository struct {
	db sqlx.ExtContext
}

func NewMessageRepository(db sqlx.ExtContext) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// Create inserts a pending message and fills in the generated fields.
func (r *messageRepository) Create(ctx context.Context, msg *models.QueuedMessage) error {
	now := time.Now()
	if msg.ScheduledAt.IsZero() {
		msg.ScheduledAt = now
	}
	msg.Status = models.MessageStatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now

	query := `
		INSERT INTO queued_messages
			(instance_id, destination, message_type, content, payload, priority, status,
			 attempt_count, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		msg.InstanceID, msg.Destination, msg.Type, msg.Content, msg.Payload, msg.Priority,
		msg.Status, msg.ScheduledAt, msg.CreatedAt, msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("failed to create message: instance %q: %w", msg.InstanceID, ErrNotFound)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// Get returns a message by id.
func (r *messageRepository) Get(ctx context.Context, id int64) (*models.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM queued_messages WHERE id = $1`

	var msg models.QueuedMessage
	if err := sqlx.GetContext(ctx, r.db, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// ClaimNext moves the next due pending message of the instance to in_flight.
// Rows locked by a concurrent claim are skipped, so two workers never
// receive the same message. It returns nil when nothing is due.
func (r *messageRepository) ClaimNext(ctx context.Context, instanceID, workerID string, now time.Time) (*models.QueuedMessage, error) {
	query := `
		UPDATE queued_messages
		SET status = $4,
		    claimed_at = $3,
		    claimed_by = $2,
		    updated_at = $3
		WHERE id = (
			SELECT id
			FROM queued_messages
			WHERE instance_id = $1
			  AND status = $5
			  AND scheduled_at <= $3
			ORDER BY priority ASC, scheduled_at ASC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + messageColumns

	var msg models.QueuedMessage
	err := sqlx.GetContext(ctx, r.db, &msg, query,
		instanceID, workerID, now, models.MessageStatusInFlight, models.MessageStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}

	return &msg, nil
}

// MarkSent records a successful delivery to the gateway.
func (r *messageRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, now time.Time) error {
	query := `
		UPDATE queued_messages
		SET status = $2,
		    provider_message_id = $3,
		    sent_at = $4,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $4
		WHERE id = $1 AND status = $5
	`

	var providerID sql.NullString
	if providerMessageID != "" {
		providerID = sql.NullString{
			String: providerMessageID,
			Valid:  true,
		}
	}

	res, err := r.db.ExecContext(ctx, query, id, models.MessageStatusSent, providerID, now, models.MessageStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	return r.checkTransition(ctx, res, id)
}

// MarkFailed records a failed attempt. Once the attempt count exceeds
// MaxRetries the message is dead-lettered whatever the failure kind.
// Otherwise non-retryable failures end in failed and retryable ones return
// to pending at RetryAt.
func (r *messageRepository) MarkFailed(ctx context.Context, id int64, p FailParams) (models.MessageStatus, error) {
	query := `
		UPDATE queued_messages
		SET attempt_count = attempt_count + 1,
		    last_error = $2,
		    status = CASE
		        WHEN attempt_count + 1 > $4 THEN $7
		        WHEN NOT $3::boolean THEN $6
		        ELSE $8
		    END,
		    scheduled_at = CASE
		        WHEN $3::boolean AND attempt_count + 1 <= $4 THEN $5
		        ELSE scheduled_at
		    END,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $9
		WHERE id = $1 AND status = $10
		RETURNING status
	`

	var status models.MessageStatus
	err := r.db.QueryRowxContext(ctx, query,
		id, p.Error, p.Retryable, p.MaxRetries, p.RetryAt,
		models.MessageStatusFailed, models.MessageStatusDeadLettered, models.MessageStatusPending,
		p.Now, models.MessageStatusInFlight,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", r.missingOrConflict(ctx, id)
		}
		return "", fmt.Errorf("failed to mark message failed: %w", err)
	}

	return status, nil
}

// DeadLetter terminates a pending or in-flight message.
func (r *messageRepository) DeadLetter(ctx context.Context, id int64, reason string, now time.Time) error {
	query := `
		UPDATE queued_messages
		SET status = $2,
		    last_error = $3,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`

	res, err := r.db.ExecContext(ctx, query, id, models.MessageStatusDeadLettered, reason, now,
		models.MessageStatusPending, models.MessageStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}

	return r.checkTransition(ctx, res, id)
}

// Release returns an in-flight message to pending without counting an attempt.
func (r *messageRepository) Release(ctx context.Context, id int64, now time.Time) error {
	query := `
		UPDATE queued_messages
		SET status = $2,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, id, models.MessageStatusPending, now, models.MessageStatusInFlight)
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}

	return r.checkTransition(ctx, res, id)
}

// RequeueStuck returns messages claimed before claimedBefore to pending.
func (r *messageRepository) RequeueStuck(ctx context.Context, claimedBefore, now time.Time) ([]int64, error) {
	query := `
		UPDATE queued_messages
		SET status = $1,
		    claimed_at = NULL,
		    claimed_by = NULL,
		    updated_at = $2
		WHERE status = $3 AND claimed_at < $4
		RETURNING id
	`

	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, query,
		models.MessageStatusPending, now, models.MessageStatusInFlight, claimedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stuck messages: %w", err)
	}

	return ids, nil
}

// ListByStatus retrieves messages in a status with pagination, most recently
// updated first.
func (r *messageRepository) ListByStatus(ctx context.Context, f ListFilter) ([]*models.QueuedMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM queued_messages
		WHERE status = $1 AND ($2 = '' OR instance_id = $2)
		ORDER BY updated_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	var messages []*models.QueuedMessage
	if err := sqlx.SelectContext(ctx, r.db, &messages, query, f.Status, f.InstanceID, f.Limit, f.Offset); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// CountByStatus returns the total for ListByStatus pagination.
func (r *messageRepository) CountByStatus(ctx context.Context, f ListFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM queued_messages WHERE status = $1 AND ($2 = '' OR instance_id = $2)`

	var count int64
	if err := sqlx.GetContext(ctx, r.db, &count, query, f.Status, f.InstanceID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// FindByProviderID looks a sent message up by the id the gateway assigned.
func (r *messageRepository) FindByProviderID(ctx context.Context, providerMessageID string) (*models.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM queued_messages WHERE provider_message_id = $1`

	var msg models.QueuedMessage
	if err := sqlx.GetContext(ctx, r.db, &msg, query, providerMessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message by provider id: %w", err)
	}

	return &msg, nil
}

// MarkDeliveryStatus stamps delivered_at / read_at on a sent message. A read
// receipt implies delivery. Timestamps already set are kept.
func (r *messageRepository) MarkDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus, at time.Time) error {
	var query string
	switch status {
	case models.DeliveryStatusDelivered:
		query = `
			UPDATE queued_messages
			SET delivered_at = COALESCE(delivered_at, $2), updated_at = $2
			WHERE id = $1 AND status = $3
		`
	case models.DeliveryStatusRead:
		query = `
			UPDATE queued_messages
			SET delivered_at = COALESCE(delivered_at, $2),
			    read_at = COALESCE(read_at, $2),
			    updated_at = $2
			WHERE id = $1 AND status = $3
		`
	default:
		return fmt.Errorf("unknown delivery status %q", status)
	}

	res, err := r.db.ExecContext(ctx, query, id, at, models.MessageStatusSent)
	if err != nil {
		return fmt.Errorf("failed to mark delivery status: %w", err)
	}

	return r.checkTransition(ctx, res, id)
}

func (r *messageRepository) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *messageRepository) missingOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS (SELECT 1 FROM queued_messages WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check message: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}
