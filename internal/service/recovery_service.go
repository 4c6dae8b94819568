package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/scheduler"
)

// RecoveryService periodically returns messages held by crashed workers to
// the queue.
type RecoveryService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

type recoveryService struct {
	scheduler *scheduler.Scheduler
	queue     QueueService
	logger    *zap.Logger
}

func NewRecoveryService(
	cfg config.QueueConfig,
	queue QueueService,
	logger *zap.Logger,
) RecoveryService {
	svc := &recoveryService{
		queue:  queue,
		logger: logger,
	}

	svc.scheduler = scheduler.NewScheduler(logger, "recovery-sweep", cfg.SweepDuration(), svc.sweep)
	return svc
}

func (s *recoveryService) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

func (s *recoveryService) Stop() error {
	return s.scheduler.Stop()
}

func (s *recoveryService) IsRunning() bool {
	return s.scheduler.IsRunning()
}

func (s *recoveryService) sweep(ctx context.Context) error {
	_, err := s.queue.RecoverStuck(ctx)
	return err
}
