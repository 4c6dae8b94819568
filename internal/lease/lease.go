// Package lease gives one process at a time the right to dispatch for an
// instance.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker grants per-instance leases to this process.
type Locker interface {
	// Acquire takes the lease if it is free or already ours.
	Acquire(ctx context.Context, instanceID string) (bool, error)
	// Renew extends a lease we hold. It reports false when the lease was lost.
	Renew(ctx context.Context, instanceID string) (bool, error)
	Release(ctx context.Context, instanceID string) error
	Owner() string
}

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker keeps leases as keys holding the owner token.
type RedisLocker struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

func key(instanceID string) string {
	return "lease:instance:" + instanceID
}

func (l *RedisLocker) Owner() string { return l.owner }

func (l *RedisLocker) Acquire(ctx context.Context, instanceID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key(instanceID), l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	return l.Renew(ctx, instanceID)
}

func (l *RedisLocker) Renew(ctx context.Context, instanceID string) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{key(instanceID)}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLocker) Release(ctx context.Context, instanceID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key(instanceID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// LocalLocker is used when a single process owns every instance.
type LocalLocker struct {
	owner string

	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		owner: uuid.NewString(),
		held:  make(map[string]struct{}),
	}
}

func (l *LocalLocker) Owner() string { return l.owner }

func (l *LocalLocker) Acquire(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	l.held[instanceID] = struct{}{}
	l.mu.Unlock()
	return true, nil
}

func (l *LocalLocker) Renew(_ context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[instanceID]
	return ok, nil
}

func (l *LocalLocker) Release(_ context.Context, instanceID string) error {
	l.mu.Lock()
	delete(l.held, instanceID)
	l.mu.Unlock()
	return nil
}
