package allowlist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/gateway/mocks"
	"github.com/popeskul/chatrelay/internal/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGuard(t *testing.T, fetcher Fetcher) (*Guard, *clock) {
	t.Helper()

	cfg := config.AllowListConfig{Enabled: true, RefreshInterval: 600, MaxStale: 3600}
	g := NewGuard(cfg, fetcher, zap.NewNop())
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	g.now = c.Now
	return g, c
}

var inst = &models.Instance{ID: "I1", APIToken: "t", State: models.InstanceStateConnected}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"255700":        "255700",
		"+255700":       "255700",
		" 255700@c.us ": "255700",
		"255700@x":      "255700",
		"AbC@g.us":      "abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestGuard_Check(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"255700@x"}, nil).Times(1)

	g, _ := newTestGuard(t, client)
	ctx := context.Background()

	assert.NoError(t, g.Check(ctx, inst, "255700@x"))
	assert.NoError(t, g.Check(ctx, inst, "255700@c.us"))
	assert.NoError(t, g.Check(ctx, inst, "+255700"))
	assert.ErrorIs(t, g.Check(ctx, inst, "999999@x"), ErrNotAllowed)
	assert.False(t, g.IsAllowed(ctx, inst, "999999@x"))
	assert.True(t, g.IsAllowed(ctx, inst, "255700"))
}

func TestGuard_RefreshAfterInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	gomock.InOrder(
		client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"1"}, nil),
		client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"1", "2"}, nil),
	)

	g, c := newTestGuard(t, client)
	ctx := context.Background()

	assert.ErrorIs(t, g.Check(ctx, inst, "2"), ErrNotAllowed)

	c.Advance(5 * time.Minute)
	assert.ErrorIs(t, g.Check(ctx, inst, "2"), ErrNotAllowed)

	c.Advance(6 * time.Minute)
	assert.NoError(t, g.Check(ctx, inst, "2"))
}

func TestGuard_RefreshFailure(t *testing.T) {
	fetchErr := errors.New("gateway down")

	t.Run("no cached entry denies", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return(nil, fetchErr)

		g, _ := newTestGuard(t, client)
		err := g.Check(context.Background(), inst, "1")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.NotErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("recent entry is served", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		gomock.InOrder(
			client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"1"}, nil),
			client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return(nil, fetchErr),
		)

		g, c := newTestGuard(t, client)
		require.NoError(t, g.Check(context.Background(), inst, "1"))

		c.Advance(30 * time.Minute)
		assert.NoError(t, g.Check(context.Background(), inst, "1"))
	})

	t.Run("expired entry denies", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		client := mocks.NewMockClient(ctrl)
		gomock.InOrder(
			client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"1"}, nil),
			client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return(nil, fetchErr),
		)

		g, c := newTestGuard(t, client)
		require.NoError(t, g.Check(context.Background(), inst, "1"))

		c.Advance(2 * time.Hour)
		assert.ErrorIs(t, g.Check(context.Background(), inst, "1"), ErrUnavailable)
	})
}

type slowFetcher struct {
	calls int32
	gate  chan struct{}
}

func (f *slowFetcher) AllowedRecipients(ctx context.Context, _ *models.Instance) ([]string, error) {
	atomic.AddInt32(&f.calls, 1)
	<-f.gate
	return []string{"1"}, nil
}

func TestGuard_ConcurrentRefreshCollapses(t *testing.T) {
	f := &slowFetcher{gate: make(chan struct{})}
	g, _ := newTestGuard(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Check(context.Background(), inst, "1")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&f.calls), int32(2))
}

func TestGuard_Disabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	g := NewGuard(config.AllowListConfig{Enabled: false}, client, zap.NewNop())
	assert.NoError(t, g.Check(context.Background(), inst, "anyone"))
}

func TestGuard_Invalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().AllowedRecipients(gomock.Any(), inst).Return([]string{"1"}, nil).Times(2)

	g, _ := newTestGuard(t, client)
	require.NoError(t, g.Check(context.Background(), inst, "1"))
	g.Invalidate(inst.ID)
	require.NoError(t, g.Check(context.Background(), inst, "1"))
}
