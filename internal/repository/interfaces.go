package repository

import (
	"context"
	"time"

	"github.com/popeskul/chatrelay/internal/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_repository.go -package=mocks

// Repository interface defines all repository operations.
type Repository interface {
	// Ping checks database connectivity
	Ping() error

	// InTx runs fn against repositories bound to a single transaction.
	// The transaction commits when fn returns nil.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	Instance() InstanceRepository
	Message() MessageRepository
	Inbound() InboundRepository
	Rule() RuleRepository
}

// InstanceRepository stores gateway instances and their rate limiter state.
type InstanceRepository interface {
	Get(ctx context.Context, id string) (*models.Instance, error)
	ListEnabled(ctx context.Context) ([]*models.Instance, error)
	UpdateState(ctx context.Context, id string, state models.InstanceState) error
	UpdateBackoff(ctx context.Context, id string, level int, nextEligibleAt *time.Time) error
	SetSuspended(ctx context.Context, id string, suspended bool) error
}

// MessageRepository is the durable outbound queue. Every state change is
// guarded by the expected current status so concurrent workers cannot
// apply conflicting transitions.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.QueuedMessage) error
	Get(ctx context.Context, id int64) (*models.QueuedMessage, error)
	ClaimNext(ctx context.Context, instanceID, workerID string, now time.Time) (*models.QueuedMessage, error)
	MarkSent(ctx context.Context, id int64, providerMessageID string, now time.Time) error
	MarkFailed(ctx context.Context, id int64, params FailParams) (models.MessageStatus, error)
	DeadLetter(ctx context.Context, id int64, reason string, now time.Time) error
	Release(ctx context.Context, id int64, now time.Time) error
	RequeueStuck(ctx context.Context, claimedBefore, now time.Time) ([]int64, error)
	ListByStatus(ctx context.Context, filter ListFilter) ([]*models.QueuedMessage, error)
	CountByStatus(ctx context.Context, filter ListFilter) (int64, error)
	FindByProviderID(ctx context.Context, providerMessageID string) (*models.QueuedMessage, error)
	MarkDeliveryStatus(ctx context.Context, id int64, status models.DeliveryStatus, at time.Time) error
}

// InboundRepository records processed inbound notifications.
type InboundRepository interface {
	// Record stores the event unless its provider message id was already
	// recorded for the instance. It reports whether a row was inserted.
	Record(ctx context.Context, event *models.InboundEvent) (bool, error)
}

// RuleRepository reads auto-reply rules and tracks their usage.
type RuleRepository interface {
	ListEnabled(ctx context.Context, instanceID string) ([]*models.AutoReplyRule, error)
	// RecordUse increments the daily counter unless the cap for the day that
	// starts at dayStart has been reached. It reports whether the use was
	// recorded.
	RecordUse(ctx context.Context, id int64, dayStart, now time.Time) (bool, error)
}

// FailParams describes a failed send attempt.
type FailParams struct {
	Error      string
	Retryable  bool
	RetryAt    time.Time
	MaxRetries int
	Now        time.Time
}

// ListFilter selects messages for listing.
type ListFilter struct {
	InstanceID string
	Status     models.MessageStatus
	Offset     int
	Limit      int
}
