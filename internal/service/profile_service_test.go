package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/models"
)

type profileFixture struct {
	svc   *ProfileService
	auth  *AuthService
	users *fakeUserRepo
	sink  *fakeSink
}

func newProfileFixture(t *testing.T) *profileFixture {
	t.Helper()
	cfg := testConfig()

	users := newFakeUserRepo()
	sink := &fakeSink{}
	auth := NewAuthService(
		users,
		newFakeOTPRepo(),
		newFakeTokenRepo(),
		newFakeOTPCache(),
		newFakeTokenCache(),
		hashing.NewHasher(cfg),
		encryption.NewManager(cfg, nil),
		&fakeSender{},
		sink,
		cfg,
	)
	return &profileFixture{
		svc:   NewProfileService(users, sink, nil, cfg),
		auth:  auth,
		users: users,
		sink:  sink,
	}
}

func (f *profileFixture) login(t *testing.T, phone string) *models.User {
	t.Helper()
	result, err := f.auth.RequestLogin(context.Background(), phone)
	require.NoError(t, err)
	return result.User
}

func TestProfileGet(t *testing.T) {
	f := newProfileFixture(t)
	user := f.login(t, "+14155550100")

	profile, err := f.svc.Get(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, profile.ID)
	assert.Equal(t, "+14155550100", profile.PhoneNumber)
	assert.Equal(t, user.ReferralCode, profile.ReferralCode)
	assert.Empty(t, profile.EnteredReferralCode)

	_, err = f.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileGetBackfillsReferralCode(t *testing.T) {
	f := newProfileFixture(t)

	// Seed an account that predates referral codes.
	seeded, created, err := f.users.FindOrCreate(context.Background(), &models.User{
		ID:          "legacy-user",
		PhoneNumber: "+14155550111",
		IsActive:    true,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Empty(t, seeded.ReferralCode)

	profile, err := f.svc.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, profile.ReferralCode)

	again, err := f.svc.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ReferralCode, again.ReferralCode)
}

func TestProfileUpdateFields(t *testing.T) {
	f := newProfileFixture(t)
	user := f.login(t, "+14155550100")

	first, last, email := "  Ada ", "Lovelace", "ada@example.com"
	profile, err := f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{
		FirstName: &first,
		LastName:  &last,
		Email:     &email,
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "Lovelace", profile.LastName)
	assert.Equal(t, "ada@example.com", profile.Email)
	assert.Contains(t, f.sink.eventTypes(), "profile_updated")

	// Partial update leaves the other fields alone.
	newLast := "Byron"
	profile, err = f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{LastName: &newLast})
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "Byron", profile.LastName)
}

func TestProfileUpdateRejectsBadEmail(t *testing.T) {
	f := newProfileFixture(t)
	user := f.login(t, "+14155550100")

	email := "not-an-email"
	_, err := f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{Email: &email})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReferralRedemption(t *testing.T) {
	f := newProfileFixture(t)
	referrer := f.login(t, "+14155550100")
	referred := f.login(t, "+14155550101")

	code := referrer.ReferralCode
	profile, err := f.svc.Update(context.Background(), referred.ID, &ProfileUpdateRequest{
		UnenteredReferralCode: &code,
	})
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, f.users.byID[referred.ID].ReferredByID)
	assert.Empty(t, profile.EnteredReferralCode)
	assert.Contains(t, f.sink.eventTypes(), "referral_redeemed")

	// The referrer sees the referred user's phone number.
	referrerProfile, err := f.svc.Get(context.Background(), referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"+14155550101"}, referrerProfile.EnteredReferralCode)

	// Redemption is one-shot per user.
	other := f.login(t, "+14155550102")
	otherCode := other.ReferralCode
	_, err = f.svc.Update(context.Background(), referred.ID, &ProfileUpdateRequest{
		UnenteredReferralCode: &otherCode,
	})
	assert.ErrorIs(t, err, ErrAlreadyRedeemed)
}

func TestReferralRedemptionRejectsBadCodes(t *testing.T) {
	f := newProfileFixture(t)
	user := f.login(t, "+14155550100")

	unknown := "ZZZZZZ"
	_, err := f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{
		UnenteredReferralCode: &unknown,
	})
	assert.ErrorIs(t, err, ErrInvalidReferralCode)

	own := user.ReferralCode
	_, err = f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{
		UnenteredReferralCode: &own,
	})
	assert.ErrorIs(t, err, ErrInvalidReferralCode)
}

func TestReferralFailureAbortsFieldWrites(t *testing.T) {
	f := newProfileFixture(t)
	user := f.login(t, "+14155550100")

	first := "Ada"
	unknown := "ZZZZZZ"
	_, err := f.svc.Update(context.Background(), user.ID, &ProfileUpdateRequest{
		FirstName:             &first,
		UnenteredReferralCode: &unknown,
	})
	assert.ErrorIs(t, err, ErrInvalidReferralCode)

	// The failed redemption must not leave partial field writes behind.
	assert.Empty(t, f.users.byID[user.ID].FirstName)
}
