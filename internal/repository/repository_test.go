package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

func TestInstanceRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewInstanceRepository(db)
	ctx := context.Background()

	insertInstance(t, db, "1101", true)
	insertInstance(t, db, "1102", false)
	insertInstance(t, db, "1100", true)

	t.Run("get", func(t *testing.T) {
		inst, err := repo.Get(ctx, "1101")
		require.NoError(t, err)
		assert.Equal(t, "token-1101", inst.APIToken)
		assert.Equal(t, models.InstanceStateConnected, inst.State)
		assert.True(t, inst.Enabled)
		assert.False(t, inst.Suspended)
		assert.Zero(t, inst.BackoffLevel)
		assert.False(t, inst.NextEligibleAt.Valid)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("list enabled", func(t *testing.T) {
		instances, err := repo.ListEnabled(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(instances))
		for _, inst := range instances {
			ids = append(ids, inst.ID)
		}
		assert.Equal(t, []string{"1100", "1101"}, ids)
	})

	t.Run("updates", func(t *testing.T) {
		next := time.Now().Add(time.Minute)

		require.NoError(t, repo.UpdateState(ctx, "1101", models.InstanceStateAwaitingAuth))
		require.NoError(t, repo.UpdateBackoff(ctx, "1101", 2, &next))
		require.NoError(t, repo.SetSuspended(ctx, "1101", true))

		inst, err := repo.Get(ctx, "1101")
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStateAwaitingAuth, inst.State)
		assert.Equal(t, 2, inst.BackoffLevel)
		require.True(t, inst.NextEligibleAt.Valid)
		assert.WithinDuration(t, next, inst.NextEligibleAt.Time, time.Millisecond)
		assert.True(t, inst.Suspended)

		require.NoError(t, repo.UpdateBackoff(ctx, "1101", 0, nil))
		require.NoError(t, repo.SetSuspended(ctx, "1101", false))

		inst, err = repo.Get(ctx, "1101")
		require.NoError(t, err)
		assert.Zero(t, inst.BackoffLevel)
		assert.False(t, inst.NextEligibleAt.Valid)
		assert.False(t, inst.Suspended)
	})

	t.Run("unknown instance", func(t *testing.T) {
		assert.ErrorIs(t, repo.UpdateState(ctx, "missing", models.InstanceStateConnected), repository.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateBackoff(ctx, "missing", 1, nil), repository.ErrNotFound)
		assert.ErrorIs(t, repo.SetSuspended(ctx, "missing", true), repository.ErrNotFound)
	})

	t.Run("invalid state is rejected by the schema", func(t *testing.T) {
		assert.Error(t, repo.UpdateState(ctx, "1100", models.InstanceState("banned")))
	})
}

func TestInboundRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewInboundRepository(db)
	ctx := context.Background()

	event := func(instanceID, providerID string) *models.InboundEvent {
		return &models.InboundEvent{
			InstanceID:        instanceID,
			ProviderMessageID: providerID,
			SenderID:          "79990000001@c.us",
			Text:              "hello",
			ReceivedAt:        time.Now(),
		}
	}

	first := event("1101", "BAE5-1")
	inserted, err := repo.Record(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)

	inserted, err = repo.Record(ctx, event("1101", "BAE5-1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = repo.Record(ctx, event("1102", "BAE5-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM inbound_events`))
	assert.Equal(t, 2, count)
}

func TestRuleRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRuleRepository(db)
	ctx := context.Background()

	two := int64(2)

	global := insertRule(t, db, "", "hello", 1, nil, true)
	scoped := insertRule(t, db, "1101", "price", 0, nil, true)
	sameTier := insertRule(t, db, "", "hours", 1, nil, true)
	insertRule(t, db, "1102", "other", 0, nil, true)
	insertRule(t, db, "", "disabled", 0, nil, false)
	capped := insertRule(t, db, "1101", "promo", 5, &two, true)

	t.Run("list enabled", func(t *testing.T) {
		rules, err := repo.ListEnabled(ctx, "1101")
		require.NoError(t, err)

		ids := make([]int64, 0, len(rules))
		for _, rule := range rules {
			ids = append(ids, rule.ID)
		}
		assert.Equal(t, []int64{scoped, sameTier, global, capped}, ids)
	})

	t.Run("daily cap", func(t *testing.T) {
		now := time.Now()
		dayStart := now.Truncate(24 * time.Hour)

		var results []bool
		for i := 0; i < 3; i++ {
			ok, err := repo.RecordUse(ctx, capped, dayStart, now.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
			results = append(results, ok)
		}
		assert.Equal(t, []bool{true, true, false}, results)

		nextDay := dayStart.Add(24 * time.Hour)
		ok, err := repo.RecordUse(ctx, capped, nextDay, nextDay.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)

		rules, err := repo.ListEnabled(ctx, "1101")
		require.NoError(t, err)
		for _, rule := range rules {
			if rule.ID == capped {
				assert.Equal(t, 1, rule.CurrentUsesToday)
				assert.False(t, rule.CapReached(nextDay))
			}
		}
	})

	t.Run("uncapped rule", func(t *testing.T) {
		dayStart := time.Now().Truncate(24 * time.Hour)
		for i := 0; i < 5; i++ {
			ok, err := repo.RecordUse(ctx, global, dayStart, time.Now())
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("unknown rule", func(t *testing.T) {
		ok, err := repo.RecordUse(ctx, capped+1000, time.Now(), time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRepository_InTx(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	ctx := context.Background()

	insertInstance(t, db, "1101", true)
	require.NoError(t, repo.Ping())

	errAbort := errors.New("abort")

	tests := []struct {
		name       string
		providerID string
		fnErr      error
		wantStored bool
	}{
		{
			name:       "commit",
			providerID: "TX-1",
			wantStored: true,
		},
		{
			name:       "rollback on error",
			providerID: "TX-2",
			fnErr:      errAbort,
			wantStored: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msgID int64
			err := repo.InTx(ctx, func(tx repository.Repository) error {
				inserted, err := tx.Inbound().Record(ctx, &models.InboundEvent{
					InstanceID:        "1101",
					ProviderMessageID: tt.providerID,
					SenderID:          "79990000001@c.us",
					Text:              "price",
					ReceivedAt:        time.Now(),
				})
				if err != nil {
					return err
				}
				require.True(t, inserted)

				msg := newTextMessage("1101", "79990000001", 0, time.Time{})
				if err := tx.Message().Create(ctx, msg); err != nil {
					return err
				}
				msgID = msg.ID

				// Nested calls join the outer transaction.
				return tx.InTx(ctx, func(repository.Repository) error {
					return tt.fnErr
				})
			})
			if tt.fnErr != nil {
				assert.ErrorIs(t, err, tt.fnErr)
			} else {
				require.NoError(t, err)
			}

			_, err = repo.Message().Get(ctx, msgID)
			if tt.wantStored {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			}

			var count int
			require.NoError(t, db.Get(&count,
				`SELECT COUNT(*) FROM inbound_events WHERE provider_message_id = $1`, tt.providerID))
			assert.Equal(t, map[bool]int{true: 1, false: 0}[tt.wantStored], count)
		})
	}

	t.Run("panic rolls back", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = repo.InTx(ctx, func(tx repository.Repository) error {
				_, err := tx.Inbound().Record(ctx, &models.InboundEvent{
					InstanceID:        "1101",
					ProviderMessageID: "TX-3",
					SenderID:          "79990000001@c.us",
					ReceivedAt:        time.Now(),
				})
				require.NoError(t, err)
				panic("boom")
			})
		})

		var count int
		require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM inbound_events WHERE provider_message_id = 'TX-3'`))
		assert.Zero(t, count)
	})
}
