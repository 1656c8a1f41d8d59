package service

import (
	"context"
	"time"

	"otp-auth-service/internal/models"
)

// OTPCache is the Redis fast path for code checks.
type OTPCache interface {
	SetOTP(ctx context.Context, phoneNumber, otpHash string, ttl time.Duration) error
	GetOTP(ctx context.Context, phoneNumber string) (string, error)
	DeleteOTP(ctx context.Context, phoneNumber string) error
}

// TokenCache maps bearer keys to user IDs.
type TokenCache interface {
	SetToken(ctx context.Context, key, userID string) error
	GetUserID(ctx context.Context, key string) (string, error)
}

// EventSink receives auth events and profile index updates. Implementations
// must not block the caller.
type EventSink interface {
	Record(event *models.AuthEvent)
	IndexProfile(user *models.User)
}
