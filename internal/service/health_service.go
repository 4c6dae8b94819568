package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/repository"
)

type healthService struct {
	repo        repository.Repository
	redisClient *redis.Client
	dispatcher  DispatcherStatus
}

// NewHealthService builds the health checker. redisClient may be nil when
// Redis is disabled.
func NewHealthService(
	repo repository.Repository,
	redisClient *redis.Client,
	dispatcher DispatcherStatus,
) HealthService {
	return &healthService{
		repo:        repo,
		redisClient: redisClient,
		dispatcher:  dispatcher,
	}
}

func (s *healthService) GetHealth() *HealthStatus {
	status := &HealthStatus{
		Status: api.Healthy,
	}

	if s.dispatcher != nil && s.dispatcher.IsRunning() {
		status.DispatcherStatus = api.HealthResponseDispatcherStatusRunning
		status.ActiveWorkers = s.dispatcher.ActiveWorkers()
	} else {
		status.DispatcherStatus = api.HealthResponseDispatcherStatusStopped
	}

	status.DatabaseStatus = s.checkDatabaseHealth()

	status.RedisStatus = s.checkRedisHealth()

	// Determine overall health
	if status.DatabaseStatus != api.HealthResponseDatabaseStatusConnected ||
		status.RedisStatus == api.HealthResponseRedisStatusDisconnected {
		status.Status = api.Unhealthy
		return status
	}

	if status.DispatcherStatus != api.HealthResponseDispatcherStatusRunning {
		status.Status = api.Degraded
	}

	return status
}

func (s *healthService) checkDatabaseHealth() api.HealthResponseDatabaseStatus {
	err := s.repo.Ping()
	if err != nil {
		return api.HealthResponseDatabaseStatusDisconnected
	}
	return api.HealthResponseDatabaseStatusConnected
}

func (s *healthService) checkRedisHealth() api.HealthResponseRedisStatus {
	if s.redisClient == nil {
		return api.HealthResponseRedisStatusDisabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return api.HealthResponseRedisStatusDisconnected
	}

	return api.HealthResponseRedisStatusConnected
}
