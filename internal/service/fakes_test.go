package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository/scylla"
)

// In-memory stand-ins for the Scylla repositories and Redis caches. They
// mirror the conditional-update semantics of the real implementations so
// the services can be exercised without a cluster.

type fakeUserRepo struct {
	mu       sync.Mutex
	byID     map[string]*models.User
	byPhone  map[string]string
	byCode   map[string]string
	referred map[string][]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:     make(map[string]*models.User),
		byPhone:  make(map[string]string),
		byCode:   make(map[string]string),
		referred: make(map[string][]*models.User),
	}
}

func (r *fakeUserRepo) FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byPhone[user.PhoneNumber]; ok {
		return r.byID[existingID], false, nil
	}
	r.byPhone[user.PhoneNumber] = user.ID
	r.byID[user.ID] = user
	return user, true, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[userID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byPhone[phoneNumber]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return r.byID[userID], nil
}

func (r *fakeUserRepo) AssignReferralCode(ctx context.Context, user *models.User, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byCode[code]; taken {
		return false, nil
	}
	r.byCode[code] = user.ID
	user.ReferralCode = code
	return true, nil
}

func (r *fakeUserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byCode[code]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return r.byID[userID], nil
}

func (r *fakeUserRepo) SetReferredBy(ctx context.Context, user *models.User, referrer *models.User) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.byID[user.ID]
	if stored.ReferredByID != "" {
		return false, nil
	}
	stored.ReferredByID = referrer.ID
	user.ReferredByID = referrer.ID
	r.referred[referrer.ID] = append(r.referred[referrer.ID], stored)
	return true, nil
}

func (r *fakeUserRepo) ListReferred(ctx context.Context, userID string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referred[userID], nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.byID[user.ID]
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Email = user.Email
	return nil
}

func (r *fakeUserRepo) MarkVerified(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[user.ID].IsVerified = true
	user.IsVerified = true
	return nil
}

func (r *fakeUserRepo) HealthCheck(ctx context.Context) error { return nil }

type fakeOTPRepo struct {
	mu    sync.Mutex
	codes map[string][]*models.AuthCode
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{codes: make(map[string][]*models.AuthCode)}
}

func (r *fakeOTPRepo) Create(ctx context.Context, code *models.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Newest first, like the clustering order of the real table.
	r.codes[code.UserID] = append([]*models.AuthCode{code}, r.codes[code.UserID]...)
	return nil
}

func (r *fakeOTPRepo) RecentByUser(ctx context.Context, userID string, limit int) ([]*models.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.codes[userID]
	if len(codes) > limit {
		codes = codes[:limit]
	}
	return codes, nil
}

func (r *fakeOTPRepo) Deactivate(ctx context.Context, code *models.AuthCode) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.codes[code.UserID] {
		if stored.CodeID == code.CodeID {
			if !stored.IsActive {
				return false, nil
			}
			stored.IsActive = false
			code.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	byUser map[string]*models.AuthToken
	byKey  map[string]string
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		byUser: make(map[string]*models.AuthToken),
		byKey:  make(map[string]string),
	}
}

func (r *fakeTokenRepo) GetOrCreate(ctx context.Context, userID, freshKey string) (*models.AuthToken, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byUser[userID]; ok {
		return existing, false, nil
	}
	token := &models.AuthToken{UserID: userID, Key: freshKey, CreatedAt: time.Now().UTC()}
	r.byUser[userID] = token
	r.byKey[freshKey] = userID
	return token, true, nil
}

func (r *fakeTokenRepo) GetUserIDByKey(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byKey[key]
	if !ok {
		return "", scylla.ErrNotFound
	}
	return userID, nil
}

type fakeOTPCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeOTPCache() *fakeOTPCache {
	return &fakeOTPCache{entries: make(map[string]string)}
}

func (c *fakeOTPCache) SetOTP(ctx context.Context, phoneNumber, otpHash string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[phoneNumber] = otpHash
	return nil
}

func (c *fakeOTPCache) GetOTP(ctx context.Context, phoneNumber string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash, ok := c.entries[phoneNumber]
	if !ok {
		return "", errors.New("cache miss")
	}
	return hash, nil
}

func (c *fakeOTPCache) DeleteOTP(ctx context.Context, phoneNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, phoneNumber)
	return nil
}

type fakeTokenCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeTokenCache() *fakeTokenCache {
	return &fakeTokenCache{entries: make(map[string]string)}
}

func (c *fakeTokenCache) SetToken(ctx context.Context, key, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = userID
	return nil
}

func (c *fakeTokenCache) GetUserID(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	userID, ok := c.entries[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return userID, nil
}

type fakeSink struct {
	mu      sync.Mutex
	events  []*models.AuthEvent
	indexed []*models.User
}

func (s *fakeSink) Record(event *models.AuthEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) IndexProfile(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexed = append(s.indexed, user)
}

func (s *fakeSink) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

type fakeSender struct {
	mu       sync.Mutex
	lastCode string
	lastURL  string
	phones   []string
}

func (s *fakeSender) SendCode(ctx context.Context, phoneNumber, code, verificationURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	s.lastURL = verificationURL
	s.phones = append(s.phones, phoneNumber)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		OTP: config.OTPConfig{
			ExpireTime:          10 * time.Minute,
			VerificationBaseURL: "http://localhost:8080",
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   8 * 1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
		Bucketing: config.BucketingConfig{
			UserBuckets:  256,
			EventBuckets: 64,
		},
	}
}
