package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-auth-service/internal/codegen"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/notify"
	"otp-auth-service/internal/repository/scylla"
	"otp-auth-service/internal/util"
)

const (
	// referralClaimAttempts bounds the retry loop when a freshly generated
	// referral code collides with an existing one.
	referralClaimAttempts = 5

	// recentCodeLimit is how many of the user's newest codes are considered
	// during validation.
	recentCodeLimit = 10
)

// LoginResult is what a successful login request returns to the caller.
type LoginResult struct {
	User     *models.User
	NextPage string
	Message  string
	Created  bool
}

// AuthService owns the login and verification flow: phone-keyed
// find-or-create, one-time code issue and validation, and the stable bearer
// token.
type AuthService struct {
	users      scylla.UserRepository
	codes      scylla.OTPRepository
	tokens     scylla.TokenRepository
	otpCache   OTPCache
	tokenCache TokenCache
	hasher     *hashing.Hasher
	encryptor  *encryption.Manager
	sender     notify.Sender
	events     EventSink
	config     *config.Config
}

func NewAuthService(
	users scylla.UserRepository,
	codes scylla.OTPRepository,
	tokens scylla.TokenRepository,
	otpCache OTPCache,
	tokenCache TokenCache,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	sender notify.Sender,
	events EventSink,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:      users,
		codes:      codes,
		tokens:     tokens,
		otpCache:   otpCache,
		tokenCache: tokenCache,
		hasher:     hasher,
		encryptor:  encryptor,
		sender:     sender,
		events:     events,
		config:     cfg,
	}
}

// RequestLogin finds or creates the user for the phone number, issues a
// fresh one-time code and delivers it out of band. Existing users keep
// logging in through the same call; there is no separate registration.
func (s *AuthService) RequestLogin(ctx context.Context, rawPhone string) (*LoginResult, error) {
	phone, err := util.NormalizePhoneNumber(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := time.Now().UTC()
	candidate := &models.User{
		ID:          uuid.New().String(),
		PhoneNumber: phone,
		IsActive:    true,
		CreatedAt:   now,
	}

	encrypted, keyID, err := s.encryptor.EncryptPhoneNumber(ctx, phone)
	if err != nil {
		util.Error("Failed to encrypt phone number", zap.Error(err))
		return nil, fmt.Errorf("failed to encrypt phone number: %w", err)
	}
	candidate.PhoneEncrypted = encrypted
	candidate.PhoneKeyID = keyID

	user, created, err := s.users.FindOrCreate(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if user.ReferralCode == "" {
		if err := assignReferralCode(ctx, s.users, user); err != nil {
			return nil, err
		}
	}

	if err := s.issueCode(ctx, user); err != nil {
		return nil, err
	}

	s.events.Record(&models.AuthEvent{
		EventType:   models.EventLoginRequested,
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
	})
	if created {
		s.events.IndexProfile(user)
	}

	return &LoginResult{
		User:     user,
		NextPage: "/verification/" + user.ID,
		Message:  "A verification code has been sent to your phone",
		Created:  created,
	}, nil
}

// assignReferralCode claims a fresh referral code for the user, retrying
// on collision up to referralClaimAttempts times.
func assignReferralCode(ctx context.Context, users scylla.UserRepository, user *models.User) error {
	for attempt := 0; attempt < referralClaimAttempts; attempt++ {
		code, err := codegen.ReferralCode()
		if err != nil {
			return err
		}
		claimed, err := users.AssignReferralCode(ctx, user, code)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}
		util.Warn("Referral code collision, retrying",
			zap.String("user_id", user.ID),
			zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("failed to assign referral code after %d attempts", referralClaimAttempts)
}

func (s *AuthService) issueCode(ctx context.Context, user *models.User) error {
	code, err := codegen.AuthCode()
	if err != nil {
		return err
	}

	authCode := &models.AuthCode{
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
		CodeID:    uuid.New().String(),
		Code:      code,
		IsActive:  true,
	}
	if err := s.codes.Create(ctx, authCode); err != nil {
		return err
	}

	// The cache miss path is a database read, so cache failures are not
	// fatal.
	if hashResult, err := s.hasher.HashOTP(code); err == nil {
		if encoded, err := hashResult.Encode(); err == nil {
			if err := s.otpCache.SetOTP(ctx, user.PhoneNumber, encoded, s.config.OTP.ExpireTime); err != nil {
				util.Warn("Failed to cache OTP hash", zap.Error(err))
			}
		}
	}

	verificationURL := strings.TrimRight(s.config.OTP.VerificationBaseURL, "/") + "/verification/" + user.ID
	if err := s.sender.SendCode(ctx, user.PhoneNumber, code, verificationURL); err != nil {
		util.Error("Failed to deliver auth code",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to deliver auth code: %w", err)
	}

	return nil
}

// VerifyCode checks the submitted code for the user and, when valid, marks
// the user verified and returns the stable bearer token. A valid code stays
// active until its window lapses, so resubmitting it succeeds again; an
// expired code is flipped inactive on first sight and rejected from then on.
func (s *AuthService) VerifyCode(ctx context.Context, userID, rawPhone, code string) (*models.AuthToken, error) {
	phone, err := util.NormalizePhoneNumber(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(code) != codegen.AuthCodeLength {
		return nil, fmt.Errorf("%w: malformed code", ErrValidation)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PhoneNumber != phone {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	valid, err := s.validateCode(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !valid {
		s.events.Record(&models.AuthEvent{
			EventType:   models.EventCodeRejected,
			UserID:      user.ID,
			PhoneNumber: user.PhoneNumber,
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		if err := s.users.MarkVerified(ctx, user); err != nil {
			return nil, err
		}
	}

	freshKey, err := codegen.Token()
	if err != nil {
		return nil, err
	}
	token, _, err := s.tokens.GetOrCreate(ctx, user.ID, freshKey)
	if err != nil {
		return nil, err
	}

	if err := s.tokenCache.SetToken(ctx, token.Key, user.ID); err != nil {
		util.Warn("Failed to cache token", zap.Error(err))
	}

	s.events.Record(&models.AuthEvent{
		EventType:   models.EventCodeVerified,
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
	})

	return token, nil
}

func (s *AuthService) validateCode(ctx context.Context, user *models.User, code string) (bool, error) {
	now := time.Now().UTC()

	// Fast path: the hash of the most recent code sits in Redis with the
	// expiry window as its TTL, so a hit here is both a match and a
	// freshness proof.
	if cached, err := s.otpCache.GetOTP(ctx, user.PhoneNumber); err == nil {
		if hashResult, err := hashing.DecodeHashResult(cached); err == nil {
			if match, err := s.hasher.VerifyOTP(code, hashResult); err == nil && match {
				return true, nil
			}
		}
	}

	recent, err := s.codes.RecentByUser(ctx, user.ID, recentCodeLimit)
	if err != nil {
		return false, err
	}

	for _, candidate := range recent {
		if candidate.Code != code || !candidate.IsActive {
			continue
		}
		if !candidate.Expired(now, s.config.OTP.ExpireTime) {
			return true, nil
		}
		// First check past the window retires the code for good.
		if _, err := s.codes.Deactivate(ctx, candidate); err != nil {
			util.Warn("Failed to deactivate expired code",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
		if err := s.otpCache.DeleteOTP(ctx, user.PhoneNumber); err != nil {
			util.Debug("Failed to evict expired OTP from cache", zap.Error(err))
		}
		return false, nil
	}

	return false, nil
}

// ResolveToken maps a bearer token key to its user ID, for the auth
// middleware. Disabled accounts are rejected even when their token is
// still valid.
func (s *AuthService) ResolveToken(ctx context.Context, key string) (string, error) {
	if len(key) != 40 {
		return "", ErrInvalidCredentials
	}

	userID, err := s.tokenCache.GetUserID(ctx, key)
	if err != nil {
		userID, err = s.tokens.GetUserIDByKey(ctx, key)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return "", ErrInvalidCredentials
			}
			return "", err
		}
		if err := s.tokenCache.SetToken(ctx, key, userID); err != nil {
			util.Debug("Failed to cache token", zap.Error(err))
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !user.IsActive {
		return "", ErrUserDisabled
	}

	return userID, nil
}
