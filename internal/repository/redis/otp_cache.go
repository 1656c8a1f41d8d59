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

const otpPrefix = "otp:"

// ErrCacheMiss is returned when the cache holds no entry for the key.
var ErrCacheMiss = errors.New("cache miss")

// OTPCache is the fast path for code checks. It holds the argon2 hash of
// the most recent code per phone number, expiring with the validity window.
// The authoritative state lives in ScyllaDB; a miss here only costs a
// database read.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

func (c *OTPCache) SetOTP(ctx context.Context, phoneNumber, otpHash string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPrefix + phoneNumber
	if err := c.client.Set(ctx, key, otpHash, ttl); err != nil {
		util.Error("Failed to set OTP in cache",
			zap.String("phone_number", phoneNumber),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set OTP in cache: %w", err)
	}

	util.Debug("OTP cached",
		zap.String("phone_number", phoneNumber),
		zap.Duration("ttl", ttl))

	return nil
}

func (c *OTPCache) GetOTP(ctx context.Context, phoneNumber string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPrefix + phoneNumber

	otpHash, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: otp for %s", ErrCacheMiss, phoneNumber)
		}
		util.Error("Failed to get OTP from cache",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return "", fmt.Errorf("failed to get OTP from cache: %w", err)
	}

	return otpHash, nil
}

func (c *OTPCache) DeleteOTP(ctx context.Context, phoneNumber string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPrefix + phoneNumber

	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete OTP from cache",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return fmt.Errorf("failed to delete OTP from cache: %w", err)
	}

	return nil
}
