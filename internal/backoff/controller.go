// Package backoff tracks provider throttling per instance and decides when
// the next send is allowed.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/models"
)

// Forever is the next eligible time of a suspended instance.
var Forever = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Store persists backoff state with the instance record.
type Store interface {
	Get(ctx context.Context, id string) (*models.Instance, error)
	UpdateBackoff(ctx context.Context, id string, level int, nextEligibleAt *time.Time) error
	SetSuspended(ctx context.Context, id string, suspended bool) error
}

// State is the rate limiter state of one instance.
type State struct {
	Level          int
	NextEligibleAt time.Time
	Suspended      bool
}

// Controller owns the backoff state of every instance handled by this
// process. State is loaded lazily from the store and written through on
// every change. Each instance has its own lock, so a slow store write for
// one instance never stalls the others.
type Controller struct {
	store    Store
	base     time.Duration
	max      time.Duration
	maxLevel int
	jitter   float64
	logger   *zap.Logger
	now      func() time.Time
	rand     func() float64

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex
	st *State
}

func NewController(cfg config.BackoffConfig, store Store, logger *zap.Logger) *Controller {
	return &Controller{
		store:    store,
		base:     cfg.BaseDuration(),
		max:      cfg.MaxDuration(),
		maxLevel: cfg.MaxLevel,
		jitter:   cfg.Jitter,
		logger:   logger,
		now:      time.Now,
		rand:     rand.Float64,
		entries:  make(map[string]*entry),
	}
}

// lock returns the locked entry of the instance. c.mu only guards the map.
func (c *Controller) lock(id string) *entry {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	return e
}

// load fills the entry from the store. The caller holds e.mu.
func (c *Controller) load(ctx context.Context, id string, e *entry) (*State, error) {
	if e.st != nil {
		return e.st, nil
	}

	inst, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load backoff state: %w", err)
	}

	st := &State{Level: inst.BackoffLevel, Suspended: inst.Suspended}
	if inst.NextEligibleAt.Valid {
		st.NextEligibleAt = inst.NextEligibleAt.Time
	}
	e.st = st
	return st, nil
}

// Delay returns the backoff window for level before jitter and hint.
func (c *Controller) Delay(level int) time.Duration {
	d := float64(c.base) * math.Pow(2, float64(level))
	if d > float64(c.max) {
		return c.max
	}
	return time.Duration(d)
}

// OnThrottled advances the level and pushes the next eligible time out.
// A provider hint longer than the computed window wins, still capped.
func (c *Controller) OnThrottled(ctx context.Context, id string, hint time.Duration) (State, error) {
	e := c.lock(id)
	defer e.mu.Unlock()

	st, err := c.load(ctx, id, e)
	if err != nil {
		return State{}, err
	}

	if st.Level < c.maxLevel {
		st.Level++
	}

	delay := time.Duration(float64(c.Delay(st.Level)) * (1 + c.jitter*(2*c.rand()-1)))
	if hint > delay {
		delay = hint
	}
	if delay > c.max {
		delay = c.max
	}

	next := c.now().Add(delay)
	if next.After(st.NextEligibleAt) {
		st.NextEligibleAt = next
	}

	c.logger.Warn("Instance throttled",
		zap.String("instanceID", id),
		zap.Int("level", st.Level),
		zap.Duration("delay", delay),
		zap.Time("nextEligibleAt", st.NextEligibleAt))

	at := st.NextEligibleAt
	if err := c.store.UpdateBackoff(ctx, id, st.Level, &at); err != nil {
		return *st, fmt.Errorf("failed to persist backoff state: %w", err)
	}
	return *st, nil
}

// OnDelivered resets the instance to normal.
func (c *Controller) OnDelivered(ctx context.Context, id string) error {
	e := c.lock(id)
	defer e.mu.Unlock()

	st, err := c.load(ctx, id, e)
	if err != nil {
		return err
	}
	if st.Level == 0 && st.NextEligibleAt.IsZero() {
		return nil
	}

	st.Level = 0
	st.NextEligibleAt = time.Time{}

	if err := c.store.UpdateBackoff(ctx, id, 0, nil); err != nil {
		return fmt.Errorf("failed to persist backoff state: %w", err)
	}
	return nil
}

// NextEligible returns the earliest time the instance may send. The zero
// time means now; a suspended instance returns Forever.
func (c *Controller) NextEligible(ctx context.Context, id string) (time.Time, error) {
	e := c.lock(id)
	defer e.mu.Unlock()

	st, err := c.load(ctx, id, e)
	if err != nil {
		return time.Time{}, err
	}
	if st.Suspended {
		return Forever, nil
	}
	return st.NextEligibleAt, nil
}

// Wait returns how long the instance has to wait before sending, zero when
// it is eligible.
func (c *Controller) Wait(ctx context.Context, id string) (time.Duration, error) {
	next, err := c.NextEligible(ctx, id)
	if err != nil {
		return 0, err
	}
	if next.Equal(Forever) {
		return time.Duration(math.MaxInt64), nil
	}
	if d := next.Sub(c.now()); d > 0 {
		return d, nil
	}
	return 0, nil
}

// Get returns a copy of the instance state.
func (c *Controller) Get(ctx context.Context, id string) (State, error) {
	e := c.lock(id)
	defer e.mu.Unlock()

	st, err := c.load(ctx, id, e)
	if err != nil {
		return State{}, err
	}
	return *st, nil
}

// Suspend blocks sends for the instance until Resume.
func (c *Controller) Suspend(ctx context.Context, id string) error {
	return c.setSuspended(ctx, id, true)
}

// Resume lifts a suspension. Any throttling window still applies.
func (c *Controller) Resume(ctx context.Context, id string) error {
	return c.setSuspended(ctx, id, false)
}

func (c *Controller) setSuspended(ctx context.Context, id string, suspended bool) error {
	e := c.lock(id)
	defer e.mu.Unlock()

	st, err := c.load(ctx, id, e)
	if err != nil {
		return err
	}

	if err := c.store.SetSuspended(ctx, id, suspended); err != nil {
		return fmt.Errorf("failed to persist suspension: %w", err)
	}
	st.Suspended = suspended

	c.logger.Info("Instance suspension changed",
		zap.String("instanceID", id),
		zap.Bool("suspended", suspended))
	return nil
}

// Forget drops the cached state so the next call reloads it from the store.
// The dispatcher calls it periodically to pick up changes made by other
// replicas.
func (c *Controller) Forget(id string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.st = nil
	e.mu.Unlock()
}
