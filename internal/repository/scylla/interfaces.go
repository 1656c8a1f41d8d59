package scylla

import (
	"context"

	"otp-auth-service/internal/models"
)

// UserRepository is the identity directory: phone-keyed users, referral
// codes, and referral edges.
type UserRepository interface {
	// FindOrCreate is an idempotent get-or-create keyed by phone number.
	// The boolean reports whether a new user was created.
	FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error)

	// AssignReferralCode claims the code for the user. Returns false when the
	// code is already owned by someone else (caller retries with a new code).
	AssignReferralCode(ctx context.Context, user *models.User, code string) (bool, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)

	// SetReferredBy links the user to its referrer exactly once. Returns
	// false when referred_by_id was already set by a concurrent request.
	SetReferredBy(ctx context.Context, user *models.User, referrer *models.User) (bool, error)
	ListReferred(ctx context.Context, userID string) ([]*models.User, error)

	UpdateProfile(ctx context.Context, user *models.User) error
	MarkVerified(ctx context.Context, user *models.User) error

	HealthCheck(ctx context.Context) error
}

// OTPRepository is the authoritative store for issued one-time codes.
type OTPRepository interface {
	Create(ctx context.Context, code *models.AuthCode) error
	// RecentByUser returns the user's newest codes, most recent first.
	RecentByUser(ctx context.Context, userID string, limit int) ([]*models.AuthCode, error)
	// Deactivate flips the code to inactive iff it is still active. The
	// boolean reports whether this call performed the flip.
	Deactivate(ctx context.Context, code *models.AuthCode) (bool, error)
}

// TokenRepository stores the single opaque bearer token per user.
type TokenRepository interface {
	// GetOrCreate stores freshKey for the user unless a token already
	// exists, in which case the existing one is returned. The boolean
	// reports whether freshKey was stored.
	GetOrCreate(ctx context.Context, userID, freshKey string) (*models.AuthToken, bool, error)
	GetUserIDByKey(ctx context.Context, key string) (string, error)
}
