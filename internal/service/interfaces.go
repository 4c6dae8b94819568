package service

import (
	"context"
	"time"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/backoff"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_service.go -package=mocks

// QueueService is the outbound message queue.
type QueueService interface {
	Enqueue(ctx context.Context, msg *models.QueuedMessage) error
	Get(ctx context.Context, id int64) (*models.QueuedMessage, error)
	ClaimNext(ctx context.Context, instanceID, workerID string) (*models.QueuedMessage, error)
	MarkSent(ctx context.Context, msg *models.QueuedMessage, providerMessageID string) error
	MarkFailed(ctx context.Context, msg *models.QueuedMessage, reason string, retryable bool, retryAt time.Time) (models.MessageStatus, error)
	DeadLetter(ctx context.Context, msg *models.QueuedMessage, reason string) error
	Release(ctx context.Context, id int64) error
	RecoverStuck(ctx context.Context) (int, error)
	ListDeadLettered(ctx context.Context, instanceID string, status models.MessageStatus, page, limit int) (*api.MessageListResponse, error)
	MarkDeliveryStatus(ctx context.Context, providerMessageID string, status models.DeliveryStatus, at time.Time) error
}

// WebhookService processes provider notifications.
type WebhookService interface {
	Handle(ctx context.Context, body []byte) (api.WebhookAckStatus, error)
}

// InstanceService exposes administrative actions on instances.
type InstanceService interface {
	Suspend(ctx context.Context, id string) (*api.InstanceResponse, error)
	Resume(ctx context.Context, id string) (*api.InstanceResponse, error)
}

type HealthService interface {
	GetHealth() *HealthStatus
}

// ReplyEvaluator answers an inbound event, enqueueing through repo.
// Replied is called once the enqueued reply has been committed.
type ReplyEvaluator interface {
	Evaluate(ctx context.Context, repo repository.Repository, event *models.InboundEvent) (*models.AutoReplyRule, error)
	Replied(ctx context.Context, event *models.InboundEvent)
}

// RateLimiter is the part of the backoff controller the services use.
type RateLimiter interface {
	Suspend(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (backoff.State, error)
}

// DispatcherStatus reports on the dispatcher workers.
type DispatcherStatus interface {
	IsRunning() bool
	ActiveWorkers() int
}
