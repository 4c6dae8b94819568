// Package dispatcher runs one send loop per enabled instance. Each loop
// claims messages from the queue, honours the instance backoff window and
// allow-list, calls the gateway and records the outcome.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/backoff"
	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/gateway"
	"github.com/popeskul/chatrelay/internal/lease"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/scheduler"
	"github.com/popeskul/chatrelay/internal/service"
)

var (
	ErrAlreadyRunning = errors.New("dispatcher is already running")
	ErrNotRunning     = errors.New("dispatcher is not running")
)

// Guard decides whether a destination may be messaged from an instance.
type Guard interface {
	Check(ctx context.Context, inst *models.Instance, destination string) error
}

// Limiter is the per-instance backoff controller.
type Limiter interface {
	Wait(ctx context.Context, id string) (time.Duration, error)
	OnThrottled(ctx context.Context, id string, hint time.Duration) (backoff.State, error)
	OnDelivered(ctx context.Context, id string) error
	Forget(id string)
}

// Deps are the collaborators of the Manager. Locker and Publisher are
// optional.
type Deps struct {
	Instances repository.InstanceRepository
	Queue     service.QueueService
	Client    gateway.Client
	Guard     Guard
	Limiter   Limiter
	Locker    lease.Locker
	Publisher events.Publisher
}

type Manager struct {
	instances repository.InstanceRepository
	queue     service.QueueService
	client    gateway.Client
	guard     Guard
	limiter   Limiter
	locker    lease.Locker
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	pollMin        time.Duration
	pollMax        time.Duration
	leaseTTL       time.Duration
	transientDelay time.Duration
	sendRate       float64
	sendBurst      int

	jobs []*scheduler.Scheduler

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	workers map[string]*worker
}

func NewManager(cfg *config.Config, deps Deps, logger *zap.Logger) *Manager {
	locker := deps.Locker
	if locker == nil {
		locker = lease.NewLocalLocker()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}

	m := &Manager{
		instances:      deps.Instances,
		queue:          deps.Queue,
		client:         deps.Client,
		guard:          deps.Guard,
		limiter:        deps.Limiter,
		locker:         locker,
		publisher:      publisher,
		logger:         logger,
		now:            time.Now,
		pollMin:        cfg.Dispatcher.PollMin(),
		pollMax:        cfg.Dispatcher.PollMax(),
		leaseTTL:       cfg.Dispatcher.LeaseDuration(),
		transientDelay: cfg.Queue.TransientRetryDuration(),
		sendRate:       cfg.Gateway.SendRate,
		sendBurst:      cfg.Gateway.SendBurst,
		workers:        make(map[string]*worker),
	}

	m.jobs = []*scheduler.Scheduler{
		scheduler.NewScheduler(logger, "instance-sync", cfg.Dispatcher.SyncDuration(), m.Sync),
		scheduler.NewScheduler(logger, "state-poll", cfg.Dispatcher.StatePollDuration(), m.PollStates),
	}
	return m
}

// Start launches workers for every enabled instance and the background jobs
// that keep the worker set and instance states current.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	if err := m.Sync(ctx); err != nil {
		m.logger.Error("Initial instance sync failed", zap.Error(err))
	}

	for _, job := range m.jobs {
		if err := job.Start(m.ctx); err != nil {
			return fmt.Errorf("failed to start %s job: %w", job.Name(), err)
		}
	}

	m.logger.Info("Dispatcher started", zap.Int("workers", m.ActiveWorkers()))
	return nil
}

// Stop halts the jobs and all workers and waits for them to exit. Messages
// in flight at that moment are left to the recovery sweep.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	m.mu.Unlock()

	for _, job := range m.jobs {
		if err := job.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			m.logger.Warn("Failed to stop job", zap.String("job", job.Name()), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.cancel()
	workers := make([]*worker, 0, len(m.workers))
	for id, w := range m.workers {
		workers = append(workers, w)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}

	m.logger.Info("Dispatcher stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Sync reconciles the worker set with the enabled instances. Disabled or
// removed instances have their worker stopped; their in-flight messages are
// requeued by the recovery sweep.
func (m *Manager) Sync(ctx context.Context) error {
	list, err := m.instances.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	enabled := make(map[string]bool, len(list))
	for _, inst := range list {
		enabled[inst.ID] = true
		// Pick up suspensions and backoff written by other replicas.
		m.limiter.Forget(inst.ID)
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}

	var stopped []*worker
	for id, w := range m.workers {
		if !enabled[id] {
			w.cancel()
			stopped = append(stopped, w)
			delete(m.workers, id)
		}
	}

	for id := range enabled {
		if _, ok := m.workers[id]; ok {
			continue
		}
		w := newWorker(m, id)
		wctx, cancel := context.WithCancel(m.ctx)
		w.cancel = cancel
		m.workers[id] = w
		go w.run(wctx)
	}
	m.mu.Unlock()

	for _, w := range stopped {
		<-w.done
		m.logger.Info("Worker stopped for disabled instance", zap.String("instanceID", w.instanceID))
	}
	return nil
}

// PollStates refreshes the connection state of every enabled instance from
// the gateway.
func (m *Manager) PollStates(ctx context.Context) error {
	list, err := m.instances.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	for _, inst := range list {
		state, err := m.client.State(ctx, inst)
		if err != nil {
			m.logger.Warn("Failed to poll instance state",
				zap.String("instanceID", inst.ID),
				zap.Error(err))
			continue
		}
		if state == inst.State {
			continue
		}

		if err := m.instances.UpdateState(ctx, inst.ID, state); err != nil {
			m.logger.Error("Failed to update instance state",
				zap.String("instanceID", inst.ID),
				zap.Error(err))
			continue
		}

		m.logger.Info("Instance state changed",
			zap.String("instanceID", inst.ID),
			zap.String("from", string(inst.State)),
			zap.String("to", string(state)))

		if err := m.publisher.Publish(ctx, events.Event{
			Kind:       events.KindStateChanged,
			InstanceID: inst.ID,
			Reason:     string(state),
			At:         m.now(),
		}); err != nil {
			m.logger.Warn("Failed to publish event", zap.Error(err))
		}
	}
	return nil
}
