package autoreply

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cooldown limits how often one sender receives an auto-reply. Active only
// reads; the window opens with Start once the reply is durably enqueued.
type Cooldown interface {
	Active(ctx context.Context, instanceID, senderID string) (bool, error)
	Start(ctx context.Context, instanceID, senderID string) error
}

// NoCooldown lets every reply through.
type NoCooldown struct{}

func (NoCooldown) Active(context.Context, string, string) (bool, error) { return false, nil }
func (NoCooldown) Start(context.Context, string, string) error          { return nil }

// RedisCooldown marks a sender with an expiring key after a reply.
type RedisCooldown struct {
	client *redis.Client
	window time.Duration
}

func NewRedisCooldown(client *redis.Client, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, window: window}
}

func cooldownKey(instanceID, senderID string) string {
	return fmt.Sprintf("autoreply:cooldown:%s:%s", instanceID, senderID)
}

// Active reports whether the sender got a reply within the window. A zero
// window disables it.
func (c *RedisCooldown) Active(ctx context.Context, instanceID, senderID string) (bool, error) {
	if c.window <= 0 {
		return false, nil
	}
	n, err := c.client.Exists(ctx, cooldownKey(instanceID, senderID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	return n > 0, nil
}

// Start opens the window for the sender.
func (c *RedisCooldown) Start(ctx context.Context, instanceID, senderID string) error {
	if c.window <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, cooldownKey(instanceID, senderID), 1, c.window).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}
