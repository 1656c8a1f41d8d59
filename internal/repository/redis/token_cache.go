package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/util"
)

const (
	tokenPrefix = "token:"
	tokenTTL    = 24 * time.Hour
)

// TokenCache maps bearer token keys to user IDs so the auth middleware can
// skip the database on repeat requests. Tokens never rotate, so the cached
// mapping cannot go stale; the TTL only bounds memory.
type TokenCache struct {
	client *client.RedisClient
}

func NewTokenCache(client *client.RedisClient) *TokenCache {
	return &TokenCache{client: client}
}

func (c *TokenCache) SetToken(ctx context.Context, key, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, tokenPrefix+key, userID, tokenTTL); err != nil {
		util.Error("Failed to cache token", zap.Error(err))
		return fmt.Errorf("failed to cache token: %w", err)
	}

	return nil
}

func (c *TokenCache) GetUserID(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	userID, err := c.client.Get(ctx, tokenPrefix+key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: token", ErrCacheMiss)
		}
		util.Error("Failed to get token from cache", zap.Error(err))
		return "", fmt.Errorf("failed to get token from cache: %w", err)
	}

	return userID, nil
}
