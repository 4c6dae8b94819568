package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/popeskul/chatrelay/internal/allowlist"
	"github.com/popeskul/chatrelay/internal/gateway"
	"github.com/popeskul/chatrelay/internal/models"
)

const transitionTimeout = 10 * time.Second

// worker drains the queue of one instance. Only one worker per instance runs
// across all replicas: it works only while holding the instance lease.
type worker struct {
	m          *Manager
	instanceID string
	workerID   string
	pacer      *rate.Limiter
	logger     *zap.Logger

	idle      time.Duration
	leased    bool
	renewedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newWorker(m *Manager, instanceID string) *worker {
	limit := rate.Inf
	if m.sendRate > 0 {
		limit = rate.Limit(m.sendRate)
	}
	burst := m.sendBurst
	if burst < 1 {
		burst = 1
	}

	return &worker{
		m:          m,
		instanceID: instanceID,
		workerID:   m.locker.Owner() + ":" + instanceID,
		pacer:      rate.NewLimiter(limit, burst),
		logger:     m.logger.With(zap.String("instanceID", instanceID)),
		idle:       m.pollMin,
		done:       make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.releaseLease()

	w.logger.Info("Dispatcher worker started", zap.String("workerID", w.workerID))
	for {
		delay := w.m.pollMax
		if w.ensureLease(ctx) {
			delay = w.iterate(ctx)
		}
		if !sleep(ctx, delay) {
			w.logger.Info("Dispatcher worker stopped")
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *worker) ensureLease(ctx context.Context) bool {
	if w.leased && time.Since(w.renewedAt) < w.m.leaseTTL/3 {
		return true
	}

	ok, err := w.m.locker.Acquire(ctx, w.instanceID)
	if err != nil {
		w.logger.Warn("Failed to acquire instance lease", zap.Error(err))
		ok = false
	}
	if ok != w.leased {
		w.logger.Info("Instance lease changed", zap.Bool("held", ok))
	}
	w.leased = ok
	if ok {
		w.renewedAt = time.Now()
	}
	return ok
}

func (w *worker) releaseLease() {
	if !w.leased {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.m.locker.Release(ctx, w.instanceID); err != nil {
		w.logger.Warn("Failed to release instance lease", zap.Error(err))
	}
	w.leased = false
}

func (w *worker) nextIdle() time.Duration {
	d := w.idle
	w.idle *= 2
	if w.idle > w.m.pollMax {
		w.idle = w.m.pollMax
	}
	return d
}

func capped(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

// iterate runs one loop body and returns how long to sleep before the next.
// A panic is logged and the claimed message, if any, is left to the recovery
// sweep.
func (w *worker) iterate(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Dispatcher iteration panicked", zap.Any("panic", r), zap.Stack("stack"))
			delay = w.m.pollMax
		}
	}()

	wait, err := w.m.limiter.Wait(ctx, w.instanceID)
	if err != nil {
		w.logger.Error("Failed to read backoff state", zap.Error(err))
		return w.m.pollMax
	}
	if wait > 0 {
		return capped(wait, w.m.pollMax)
	}

	inst, err := w.m.instances.Get(ctx, w.instanceID)
	if err != nil {
		w.logger.Error("Failed to load instance", zap.Error(err))
		return w.m.pollMax
	}
	if !inst.IsConnected() {
		w.logger.Debug("Instance not connected", zap.String("state", string(inst.State)))
		return w.m.pollMax
	}

	if err := w.pacer.Wait(ctx); err != nil {
		return 0
	}

	msg, err := w.m.queue.ClaimNext(ctx, w.instanceID, w.workerID)
	if err != nil {
		w.logger.Error("Failed to claim message", zap.Error(err))
		return w.m.pollMax
	}
	if msg == nil {
		return w.nextIdle()
	}
	w.idle = w.m.pollMin

	// A throttle or suspension may have arrived from another path while
	// claiming.
	if wait, err := w.m.limiter.Wait(ctx, w.instanceID); err == nil && wait > 0 {
		tctx, cancel := transitionContext(ctx)
		defer cancel()
		if err := w.m.queue.Release(tctx, msg.ID); err != nil {
			w.logger.Error("Failed to release message", zap.Int64("messageID", msg.ID), zap.Error(err))
		}
		return capped(wait, w.m.pollMax)
	}

	w.process(ctx, inst, msg)
	return 0
}

func transitionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), transitionTimeout)
}

// process attempts one claimed message and applies the resulting transition.
func (w *worker) process(ctx context.Context, inst *models.Instance, msg *models.QueuedMessage) {
	log := w.logger.With(zap.Int64("messageID", msg.ID))

	if err := msg.Validate(); err != nil {
		w.fail(ctx, msg, fmt.Sprintf("invalid message: %v", err), false, time.Time{})
		return
	}

	if err := w.m.guard.Check(ctx, inst, msg.Destination); err != nil {
		if errors.Is(err, allowlist.ErrNotAllowed) {
			w.deadLetter(ctx, msg, err.Error())
			return
		}
		log.Warn("Allow-list unavailable", zap.Error(err))
		w.fail(ctx, msg, err.Error(), true, w.m.now().Add(w.m.transientDelay))
		return
	}

	res := w.m.client.Send(ctx, inst, msg.Destination, gateway.PayloadFrom(msg))

	tctx, cancel := transitionContext(ctx)
	defer cancel()

	switch res.Outcome {
	case gateway.Delivered:
		if err := w.m.queue.MarkSent(tctx, msg, res.ProviderMessageID); err != nil {
			log.Error("Failed to mark message sent", zap.Error(err))
		}
		if err := w.m.limiter.OnDelivered(tctx, w.instanceID); err != nil {
			log.Error("Failed to reset backoff", zap.Error(err))
		}

	case gateway.Throttled:
		st, err := w.m.limiter.OnThrottled(tctx, w.instanceID, res.RetryAfter)
		if err != nil {
			log.Error("Failed to advance backoff", zap.Error(err))
			st.NextEligibleAt = w.m.now().Add(w.m.transientDelay)
		}
		log.Warn("Gateway throttled instance",
			zap.Int("backoffLevel", st.Level),
			zap.Time("nextEligibleAt", st.NextEligibleAt))
		w.fail(tctx, msg, res.Error(), true, st.NextEligibleAt)

	case gateway.Rejected:
		w.deadLetter(tctx, msg, res.Error())

	default:
		w.fail(tctx, msg, res.Error(), true, w.m.now().Add(w.m.transientDelay))
	}
}

func (w *worker) fail(ctx context.Context, msg *models.QueuedMessage, reason string, retryable bool, retryAt time.Time) {
	tctx, cancel := transitionContext(ctx)
	defer cancel()

	if retryAt.IsZero() {
		retryAt = w.m.now()
	}
	if _, err := w.m.queue.MarkFailed(tctx, msg, reason, retryable, retryAt); err != nil {
		w.logger.Error("Failed to record send failure", zap.Int64("messageID", msg.ID), zap.Error(err))
	}
}

func (w *worker) deadLetter(ctx context.Context, msg *models.QueuedMessage, reason string) {
	tctx, cancel := transitionContext(ctx)
	defer cancel()

	if err := w.m.queue.DeadLetter(tctx, msg, reason); err != nil {
		w.logger.Error("Failed to dead-letter message", zap.Int64("messageID", msg.ID), zap.Error(err))
	}
}
