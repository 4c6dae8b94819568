package gateway

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
)

// breakers holds one circuit breaker per instance so a failing account
// does not block the others.
type breakers struct {
	cfg    config.CircuitBreakerConfig
	logger *zap.Logger

	mu  sync.Mutex
	set map[string]*gobreaker.CircuitBreaker
}

func newBreakers(cfg config.CircuitBreakerConfig, logger *zap.Logger) *breakers {
	return &breakers{
		cfg:    cfg,
		logger: logger,
		set:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *breakers) get(instanceID string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.set[instanceID]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        "gateway-" + instanceID,
		MaxRequests: b.cfg.MaxRequests,
		Interval:    time.Duration(b.cfg.Interval) * time.Second,
		Timeout:     time.Duration(b.cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= b.cfg.ConsecutiveFails && failureRatio >= b.cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	b.set[instanceID] = cb
	return cb
}

// execute runs fn through the instance breaker. Only transient outcomes count
// as breaker failures; an open breaker yields TransientError without calling fn.
func (b *breakers) execute(instanceID string, fn func() Result) Result {
	var (
		res Result
		ran bool
	)
	_, err := b.get(instanceID).Execute(func() (interface{}, error) {
		ran = true
		res = fn()
		if res.Outcome == TransientError {
			return nil, res
		}
		return nil, nil
	})
	if !ran {
		b.logger.Warn("Circuit breaker rejected gateway call",
			zap.String("instanceID", instanceID),
			zap.Error(err))
		return Result{Outcome: TransientError, Err: err}
	}
	return res
}

// State returns the breaker state of an instance.
func (b *breakers) State(instanceID string) gobreaker.State {
	return b.get(instanceID).State()
}
