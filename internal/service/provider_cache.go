package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const providerIDTTL = 24 * time.Hour

// ProviderIDCache maps provider message ids to queue ids so delivery
// receipts skip the database lookup.
type ProviderIDCache interface {
	Put(ctx context.Context, providerMessageID string, messageID int64) error
	Get(ctx context.Context, providerMessageID string) (int64, bool, error)
}

type redisProviderCache struct {
	client *redis.Client
}

func NewRedisProviderCache(client *redis.Client) ProviderIDCache {
	return &redisProviderCache{client: client}
}

func providerKey(providerMessageID string) string {
	return fmt.Sprintf("message:%s", providerMessageID)
}

func (c *redisProviderCache) Put(ctx context.Context, providerMessageID string, messageID int64) error {
	return c.client.Set(ctx, providerKey(providerMessageID), messageID, providerIDTTL).Err()
}

func (c *redisProviderCache) Get(ctx context.Context, providerMessageID string) (int64, bool, error) {
	v, err := c.client.Get(ctx, providerKey(providerMessageID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached message id %q: %w", v, err)
	}
	return id, true, nil
}

type noProviderCache struct{}

func (noProviderCache) Put(context.Context, string, int64) error { return nil }

func (noProviderCache) Get(context.Context, string) (int64, bool, error) { return 0, false, nil }
