package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs one named job periodically: once on start and then every
// interval until stopped or its context is canceled.
type Scheduler struct {
	logger    *zap.Logger
	name      string
	interval  time.Duration
	taskFunc  func(context.Context) error
	stopCh    chan struct{}
	doneCh    chan struct{}
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a scheduler for the job called name.
func NewScheduler(logger *zap.Logger, name string, interval time.Duration, taskFunc func(context.Context) error) *Scheduler {
	return &Scheduler{
		logger:   logger.With(zap.String("job", name)),
		name:     name,
		interval: interval,
		taskFunc: taskFunc,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Name() string { return s.name }

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return ErrSchedulerAlreadyRunning
	}

	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx, s.stopCh, s.doneCh)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the scheduler and waits for a running task to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.logger.Info("Scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.executeTask(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler context canceled")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.executeTask(ctx)
		}
	}
}

// taskTimeout leaves a second of headroom before the next tick on long
// intervals.
func (s *Scheduler) taskTimeout() time.Duration {
	if s.interval > 2*time.Second {
		return s.interval - time.Second
	}
	return s.interval
}

// executeTask runs the task function and logs failures. A panicking task is
// logged and the schedule continues.
func (s *Scheduler) executeTask(ctx context.Context) {
	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", zap.Any("panic", r))
		}
	}()

	if err := s.taskFunc(taskCtx); err != nil {
		s.logger.Error("Task execution failed", zap.Error(err))
		return
	}
	s.logger.Debug("Task execution completed")
}
