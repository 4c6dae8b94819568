// Package allowlist validates recipients against the provider allow-list
// before a send consumes any attempt budget.
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/models"
)

var (
	// ErrNotAllowed means the destination is not on the instance allow-list.
	ErrNotAllowed = errors.New("destination is not allow-listed")
	// ErrUnavailable means the allow-list could not be fetched and no usable
	// cached copy exists.
	ErrUnavailable = errors.New("allow-list unavailable")
)

// Fetcher loads the allowed recipients of an instance.
type Fetcher interface {
	AllowedRecipients(ctx context.Context, inst *models.Instance) ([]string, error)
}

type entry struct {
	recipients map[string]struct{}
	fetchedAt  time.Time
}

// Guard caches one allow-list per instance.
type Guard struct {
	fetcher  Fetcher
	enabled  bool
	refresh  time.Duration
	maxStale time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
}

func NewGuard(cfg config.AllowListConfig, fetcher Fetcher, logger *zap.Logger) *Guard {
	return &Guard{
		fetcher:  fetcher,
		enabled:  cfg.Enabled,
		refresh:  cfg.RefreshDuration(),
		maxStale: cfg.MaxStaleDuration(),
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Normalize reduces a recipient identifier to its comparable number part:
// "+255700@c.us" and "255700@x" both become "255700".
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "+")
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	return strings.ToLower(id)
}

// IsAllowed reports whether destination may be messaged from inst.
func (g *Guard) IsAllowed(ctx context.Context, inst *models.Instance, destination string) bool {
	return g.Check(ctx, inst, destination) == nil
}

// Check returns nil when the destination is allowed, ErrNotAllowed when it is
// not, and ErrUnavailable when the list cannot be determined.
func (g *Guard) Check(ctx context.Context, inst *models.Instance, destination string) error {
	if !g.enabled {
		return nil
	}

	e, err := g.entry(ctx, inst)
	if err != nil {
		return err
	}

	if _, ok := e.recipients[Normalize(destination)]; !ok {
		return ErrNotAllowed
	}
	return nil
}

// Invalidate drops the cached list so the next check refetches it.
func (g *Guard) Invalidate(instanceID string) {
	g.mu.Lock()
	delete(g.entries, instanceID)
	g.mu.Unlock()
}

func (g *Guard) entry(ctx context.Context, inst *models.Instance) (*entry, error) {
	g.mu.RLock()
	cached := g.entries[inst.ID]
	g.mu.RUnlock()

	now := g.now()
	if cached != nil && now.Sub(cached.fetchedAt) < g.refresh {
		return cached, nil
	}

	v, err, _ := g.group.Do(inst.ID, func() (interface{}, error) {
		list, err := g.fetcher.AllowedRecipients(ctx, inst)
		if err != nil {
			return nil, err
		}

		fresh := &entry{
			recipients: make(map[string]struct{}, len(list)),
			fetchedAt:  g.now(),
		}
		for _, r := range list {
			fresh.recipients[Normalize(r)] = struct{}{}
		}

		g.mu.Lock()
		g.entries[inst.ID] = fresh
		g.mu.Unlock()

		g.logger.Debug("Allow-list refreshed",
			zap.String("instanceID", inst.ID),
			zap.Int("recipients", len(fresh.recipients)))
		return fresh, nil
	})
	if err == nil {
		return v.(*entry), nil
	}

	if cached != nil && now.Sub(cached.fetchedAt) < g.maxStale {
		g.logger.Warn("Allow-list refresh failed, serving cached copy",
			zap.String("instanceID", inst.ID),
			zap.Duration("age", now.Sub(cached.fetchedAt)),
			zap.Error(err))
		return cached, nil
	}

	g.logger.Error("Allow-list refresh failed",
		zap.String("instanceID", inst.ID),
		zap.Error(err))
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
