package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type userRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager, logger *zap.Logger) UserRepository {
	return &userRepository{client: client, buckets: buckets}
}

func (r *userRepository) FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error) {
	user.UserBucket = r.buckets.UserBucket(user.ID)

	// Claim the phone number first; the mapping table is the uniqueness
	// authority for users.
	claim := r.client.Session.Query(`
        INSERT INTO phone_to_user (phone_number, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		user.PhoneNumber, user.UserBucket, user.ID, user.CreatedAt).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := claim.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to claim phone number",
			zap.String("phone_number", user.PhoneNumber),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to claim phone number: %w", err)
	}

	if !applied {
		existingBucket, _ := previous["user_bucket"].(int)
		existingID, _ := previous["user_id"].(string)
		existing, err := r.getByBucketAndID(ctx, existingBucket, existingID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	insert := r.client.Prepared.CreateUser.WithContext(ctx).Bind(
		user.UserBucket, user.ID, user.PhoneNumber, user.PhoneEncrypted, user.PhoneKeyID,
		user.FirstName, user.LastName, user.Email, user.ReferralCode, user.ReferredByID,
		user.IsVerified, user.IsActive, user.CreatedAt, user.UpdatedAt)

	if err := r.client.ExecuteWithRetry(insert, 2); err != nil {
		util.Error("Failed to create user",
			zap.String("phone_number", user.PhoneNumber),
			zap.String("user_id", user.ID),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.ID),
		zap.Int("user_bucket", user.UserBucket))

	return user, true, nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	// The partition bucket is a pure function of the user ID, so a bare ID
	// is enough to locate the row.
	return r.getByBucketAndID(ctx, r.buckets.UserBucket(userID), userID)
}

func (r *userRepository) getByBucketAndID(ctx context.Context, bucket int, userID string) (*models.User, error) {
	user := &models.User{}
	query := r.client.Prepared.GetUserByID.WithContext(ctx).Bind(bucket, userID)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.ID, &user.PhoneNumber, &user.PhoneEncrypted, &user.PhoneKeyID,
		&user.FirstName, &user.LastName, &user.Email, &user.ReferralCode, &user.ReferredByID,
		&user.IsVerified, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetPhoneMapping.WithContext(ctx).Bind(phoneNumber)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("%w: phone %s", ErrNotFound, phoneNumber)
		}
		return nil, fmt.Errorf("failed to resolve phone number: %w", err)
	}

	return r.getByBucketAndID(ctx, bucket, userID)
}

func (r *userRepository) AssignReferralCode(ctx context.Context, user *models.User, code string) (bool, error) {
	now := time.Now().UTC()

	claim := r.client.Session.Query(`
        INSERT INTO referral_codes (code, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		code, user.UserBucket, user.ID, now).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := claim.MapScanCAS(previous)
	if err != nil {
		return false, fmt.Errorf("failed to claim referral code: %w", err)
	}
	if !applied {
		// Collision; the caller generates a new code and retries.
		return false, nil
	}

	update := r.client.Prepared.SetReferralCode.WithContext(ctx).Bind(
		code, now, user.UserBucket, user.ID)
	if err := r.client.ExecuteWithRetry(update, 2); err != nil {
		util.Error("Failed to store referral code on user",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return false, fmt.Errorf("failed to store referral code: %w", err)
	}

	user.ReferralCode = code
	user.UpdatedAt = &now

	util.Info("Referral code assigned",
		zap.String("user_id", user.ID),
		zap.String("referral_code", code))

	return true, nil
}

func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetReferralOwner.WithContext(ctx).Bind(code)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("%w: referral code %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}

	return r.getByBucketAndID(ctx, bucket, userID)
}

func (r *userRepository) SetReferredBy(ctx context.Context, user *models.User, referrer *models.User) (bool, error) {
	now := time.Now().UTC()

	// Conditional update makes redemption exactly-once under concurrent
	// requests for the same user.
	update := r.client.Session.Query(`
        UPDATE users SET referred_by_id = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?
        IF referred_by_id = null`,
		referrer.ID, now, user.UserBucket, user.ID).WithContext(ctx)

	var existingReferrer string
	applied, err := update.ScanCAS(&existingReferrer)
	if err != nil {
		util.Error("Failed to set referred_by",
			zap.String("user_id", user.ID),
			zap.String("referrer_id", referrer.ID),
			zap.Error(err))
		return false, fmt.Errorf("failed to set referred_by: %w", err)
	}
	if !applied {
		return false, nil
	}

	user.ReferredByID = referrer.ID
	user.UpdatedAt = &now

	edge := r.client.Session.Query(`
        INSERT INTO referrals_by_referrer (referrer_id, referred_id, referred_phone, created_at)
        VALUES (?, ?, ?, ?)`,
		referrer.ID, user.ID, user.PhoneNumber, now).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(edge, 2); err != nil {
		// The edge row is a projection; the authoritative link is already
		// committed on the user row.
		util.Warn("Failed to write referral edge projection",
			zap.String("referrer_id", referrer.ID),
			zap.String("referred_id", user.ID),
			zap.Error(err))
	}

	util.Info("Referral redeemed",
		zap.String("user_id", user.ID),
		zap.String("referrer_id", referrer.ID))

	return true, nil
}

func (r *userRepository) ListReferred(ctx context.Context, userID string) ([]*models.User, error) {
	iter := r.client.Prepared.ListReferred.WithContext(ctx).Bind(userID).Iter()

	var referred []*models.User
	var referredID, referredPhone string
	var createdAt time.Time
	for iter.Scan(&referredID, &referredPhone, &createdAt) {
		referred = append(referred, &models.User{
			ID:          referredID,
			PhoneNumber: referredPhone,
			CreatedAt:   createdAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list referred users: %w", err)
	}

	return referred, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.UpdatedAt = &now

	update := r.client.Prepared.UpdateProfile.WithContext(ctx).Bind(
		user.FirstName, user.LastName, user.Email, now, user.UserBucket, user.ID)
	if err := r.client.ExecuteWithRetry(update, 2); err != nil {
		util.Error("Failed to update profile",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}

func (r *userRepository) MarkVerified(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()

	update := r.client.Prepared.MarkVerified.WithContext(ctx).Bind(
		now, user.UserBucket, user.ID)
	if err := r.client.ExecuteWithRetry(update, 2); err != nil {
		util.Error("Failed to mark user verified",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	user.IsVerified = true
	user.UpdatedAt = &now
	return nil
}

func (r *userRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
