package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/repository"
)

type Service struct {
	Queue    QueueService
	Webhook  WebhookService
	Instance InstanceService
	Health   HealthService
	Recovery RecoveryService
}

// Dependencies are the collaborators built outside the service layer.
// RedisClient may be nil.
type Dependencies struct {
	Repo        repository.Repository
	RedisClient *redis.Client
	Queue       QueueService
	Publisher   events.Publisher
	Replies     ReplyEvaluator
	Limiter     RateLimiter
	Dispatcher  DispatcherStatus
}

func NewService(
	cfg *config.Config,
	deps Dependencies,
	logger *zap.Logger,
) *Service {
	queue := deps.Queue
	if queue == nil {
		var cache ProviderIDCache
		if deps.RedisClient != nil {
			cache = NewRedisProviderCache(deps.RedisClient)
		}
		queue = NewQueueService(cfg.Queue, deps.Repo, cache, deps.Publisher, logger)
	}

	return &Service{
		Queue:    queue,
		Webhook:  NewWebhookService(deps.Repo, queue, deps.Replies, deps.Publisher, logger),
		Instance: NewInstanceService(deps.Repo, deps.Limiter, logger),
		Health:   NewHealthService(deps.Repo, deps.RedisClient, deps.Dispatcher),
		Recovery: NewRecoveryService(cfg.Queue, queue, logger),
	}
}
