package memory

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

func newStore(t *testing.T, instanceIDs ...string) *Store {
	t.Helper()
	s := NewStore()
	for _, id := range instanceIDs {
		s.PutInstance(&models.Instance{
			ID:      id,
			State:   models.InstanceStateConnected,
			Enabled: true,
		})
	}
	return s
}

func enqueue(t *testing.T, s *Store, instanceID string, priority int, at time.Time) int64 {
	t.Helper()
	msg := &models.QueuedMessage{
		InstanceID:  instanceID,
		Destination: "79990000001",
		Type:        models.MessageTypeText,
		Content:     "hi",
		Priority:    priority,
		ScheduledAt: at,
	}
	require.NoError(t, s.Message().Create(context.Background(), msg))
	return msg.ID
}

func TestStore_ClaimOrder(t *testing.T) {
	s := newStore(t, "1101", "1102")
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	low := enqueue(t, s, "1101", 1, base)
	later := enqueue(t, s, "1101", 0, base.Add(2*time.Minute))
	first := enqueue(t, s, "1101", 0, base.Add(time.Minute))
	enqueue(t, s, "1101", -5, time.Now().Add(time.Hour))
	enqueue(t, s, "1102", -5, base)

	var got []int64
	for {
		msg, err := s.Message().ClaimNext(ctx, "1101", "w1", time.Now())
		require.NoError(t, err)
		if msg == nil {
			break
		}
		assert.Equal(t, models.MessageStatusInFlight, msg.Status)
		assert.Equal(t, "w1", msg.ClaimedBy.String)
		got = append(got, msg.ID)
	}

	assert.Equal(t, []int64{first, later, low}, got)
}

func TestStore_ConcurrentClaims(t *testing.T) {
	s := newStore(t, "1101")
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		enqueue(t, s, "1101", 0, time.Now().Add(-time.Second))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, _ := s.Message().ClaimNext(ctx, "1101", "w", time.Now())
				if msg == nil {
					return
				}
				mu.Lock()
				seen[msg.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestStore_MarkFailed(t *testing.T) {
	retryAt := time.Now().Add(time.Minute)

	tests := []struct {
		name         string
		retryable    bool
		maxRetries   int
		wantStatus   models.MessageStatus
		wantSchedule bool
	}{
		{name: "non-retryable", retryable: false, maxRetries: 3, wantStatus: models.MessageStatusFailed},
		{name: "retry", retryable: true, maxRetries: 3, wantStatus: models.MessageStatusPending, wantSchedule: true},
		{name: "exhausted", retryable: true, maxRetries: 0, wantStatus: models.MessageStatusDeadLettered},
		{name: "non-retryable past budget", retryable: false, maxRetries: 0, wantStatus: models.MessageStatusDeadLettered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, "1101")
			ctx := context.Background()
			id := enqueue(t, s, "1101", 0, time.Now().Add(-time.Second))
			_, err := s.Message().ClaimNext(ctx, "1101", "w1", time.Now())
			require.NoError(t, err)

			status, err := s.Message().MarkFailed(ctx, id, repository.FailParams{
				Error:      "boom",
				Retryable:  tt.retryable,
				RetryAt:    retryAt,
				MaxRetries: tt.maxRetries,
				Now:        time.Now(),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)

			msg, err := s.Message().Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1, msg.AttemptCount)
			assert.Equal(t, "boom", msg.LastError.String)
			assert.False(t, msg.ClaimedAt.Valid)
			assert.Equal(t, tt.wantSchedule, msg.ScheduledAt.Equal(retryAt))
		})
	}
}

func TestStore_Transitions(t *testing.T) {
	s := newStore(t, "1101")
	ctx := context.Background()
	now := time.Now()

	id := enqueue(t, s, "1101", 0, now.Add(-time.Second))

	assert.ErrorIs(t, s.Message().MarkSent(ctx, id, "P1", now), repository.ErrInvalidTransition)
	assert.ErrorIs(t, s.Message().MarkSent(ctx, id+100, "P1", now), repository.ErrNotFound)
	assert.ErrorIs(t, s.Message().Release(ctx, id, now), repository.ErrInvalidTransition)

	_, err := s.Message().ClaimNext(ctx, "1101", "w1", now)
	require.NoError(t, err)
	require.NoError(t, s.Message().Release(ctx, id, now))

	_, err = s.Message().ClaimNext(ctx, "1101", "w1", now)
	require.NoError(t, err)
	require.NoError(t, s.Message().MarkSent(ctx, id, "P1", now))
	assert.ErrorIs(t, s.Message().DeadLetter(ctx, id, "late", now), repository.ErrInvalidTransition)

	found, err := s.Message().FindByProviderID(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	require.NoError(t, s.Message().MarkDeliveryStatus(ctx, id, models.DeliveryStatusRead, now))
	require.NoError(t, s.Message().MarkDeliveryStatus(ctx, id, models.DeliveryStatusDelivered, now.Add(time.Minute)))
	assert.Error(t, s.Message().MarkDeliveryStatus(ctx, id, models.DeliveryStatus("played"), now))

	msg, err := s.Message().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, msg.Status)
	assert.True(t, msg.DeliveredAt.Time.Equal(now))
	assert.True(t, msg.ReadAt.Time.Equal(now))

	err = s.Message().Create(ctx, &models.QueuedMessage{InstanceID: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_RequeueAndList(t *testing.T) {
	s := newStore(t, "1101", "1102")
	ctx := context.Background()
	now := time.Now()

	stale := enqueue(t, s, "1101", 0, now.Add(-time.Hour))
	_, err := s.Message().ClaimNext(ctx, "1101", "w1", now.Add(-10*time.Minute))
	require.NoError(t, err)
	fresh := enqueue(t, s, "1101", 0, now.Add(-time.Hour))
	_, err = s.Message().ClaimNext(ctx, "1101", "w2", now)
	require.NoError(t, err)

	ids, err := s.Message().RequeueStuck(ctx, now.Add(-2*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, []int64{stale}, ids)

	require.NoError(t, s.Message().DeadLetter(ctx, stale, "x", now))
	require.NoError(t, s.Message().DeadLetter(ctx, fresh, "x", now.Add(time.Second)))
	other := enqueue(t, s, "1102", 0, now)
	require.NoError(t, s.Message().DeadLetter(ctx, other, "x", now.Add(2*time.Second)))

	all, err := s.Message().ListByStatus(ctx, repository.ListFilter{Status: models.MessageStatusDeadLettered, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{other, fresh, stale}, []int64{all[0].ID, all[1].ID, all[2].ID})

	page, err := s.Message().ListByStatus(ctx, repository.ListFilter{
		InstanceID: "1101",
		Status:     models.MessageStatusDeadLettered,
		Offset:     1,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, stale, page[0].ID)

	count, err := s.Message().CountByStatus(ctx, repository.ListFilter{InstanceID: "1101", Status: models.MessageStatusDeadLettered})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestStore_InboundAndRules(t *testing.T) {
	s := newStore(t, "1101")
	ctx := context.Background()

	evt := &models.InboundEvent{InstanceID: "1101", ProviderMessageID: "M1", SenderID: "a"}
	inserted, err := s.Inbound().Record(ctx, evt)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.Inbound().Record(ctx, &models.InboundEvent{InstanceID: "1101", ProviderMessageID: "M1"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, s.InboundCount())

	global := s.AddRule(&models.AutoReplyRule{TriggerText: "hi", Enabled: true, Priority: 1})
	capped := s.AddRule(&models.AutoReplyRule{
		InstanceID:    sql.NullString{String: "1101", Valid: true},
		TriggerText:   "promo",
		Enabled:       true,
		MaxUsesPerDay: sql.NullInt64{Int64: 1, Valid: true},
	})
	s.AddRule(&models.AutoReplyRule{InstanceID: sql.NullString{String: "1102", Valid: true}, TriggerText: "x", Enabled: true})
	s.AddRule(&models.AutoReplyRule{TriggerText: "off"})

	rules, err := s.Rule().ListEnabled(ctx, "1101")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, capped, rules[0].ID)
	assert.Equal(t, global, rules[1].ID)

	dayStart := time.Now().Truncate(24 * time.Hour)
	ok, err := s.Rule().RecordUse(ctx, capped, dayStart, dayStart.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Rule().RecordUse(ctx, capped, dayStart, dayStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	nextDay := dayStart.Add(24 * time.Hour)
	ok, err = s.Rule().RecordUse(ctx, capped, nextDay, nextDay.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	rule, found := s.RuleByID(capped)
	require.True(t, found)
	assert.Equal(t, 1, rule.CurrentUsesToday)
}
