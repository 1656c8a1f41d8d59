package service

import (
	"context"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/hashing"
)

type authFixture struct {
	svc        *AuthService
	users      *fakeUserRepo
	codes      *fakeOTPRepo
	tokens     *fakeTokenRepo
	otpCache   *fakeOTPCache
	tokenCache *fakeTokenCache
	sink       *fakeSink
	sender     *fakeSender
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cfg := testConfig()

	f := &authFixture{
		users:      newFakeUserRepo(),
		codes:      newFakeOTPRepo(),
		tokens:     newFakeTokenRepo(),
		otpCache:   newFakeOTPCache(),
		tokenCache: newFakeTokenCache(),
		sink:       &fakeSink{},
		sender:     &fakeSender{},
	}
	f.svc = NewAuthService(
		f.users,
		f.codes,
		f.tokens,
		f.otpCache,
		f.tokenCache,
		hashing.NewHasher(cfg),
		encryption.NewManager(cfg, nil),
		f.sender,
		f.sink,
		cfg,
	)
	return f
}

func TestRequestLoginCreatesUser(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.RequestLogin(context.Background(), " +1 415-555-0100 ")
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "+14155550100", result.User.PhoneNumber)
	assert.Equal(t, "/verification/"+result.User.ID, result.NextPage)
	assert.NotEmpty(t, result.Message)

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), result.User.ReferralCode)
	assert.Regexp(t, regexp.MustCompile(`^[1-9]{4}$`), f.sender.lastCode)
	assert.Contains(t, f.sender.lastURL, "/verification/"+result.User.ID)

	assert.NotEmpty(t, result.User.PhoneEncrypted)
	assert.Contains(t, f.sink.eventTypes(), "login_requested")
	assert.Len(t, f.sink.indexed, 1)
}

func TestVerificationLinkPath(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)

	link, err := url.Parse(f.sender.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "/verification/"+result.User.ID, link.Path)
}

func TestRequestLoginIsIdempotentPerPhone(t *testing.T) {
	f := newAuthFixture(t)

	first, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	second, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.User.ReferralCode, second.User.ReferralCode)

	// A fresh code is issued on every login.
	assert.Len(t, f.codes.codes[first.User.ID], 2)
}

func TestRequestLoginRejectsBadPhone(t *testing.T) {
	f := newAuthFixture(t)

	for _, phone := range []string{"", "415", "4155550100", "+0155550100", "+1415abc0100"} {
		_, err := f.svc.RequestLogin(context.Background(), phone)
		assert.ErrorIs(t, err, ErrValidation, "phone %q", phone)
	}
}

func TestVerifyCodeReturnsStableToken(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	code := f.sender.lastCode

	token, err := f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{40}$`), token.Key)

	user, err := f.users.GetByID(context.Background(), login.User.ID)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)

	// A valid code stays usable within its window, and the token does not
	// rotate.
	again, err := f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
	require.NoError(t, err)
	assert.Equal(t, token.Key, again.Key)

	assert.Contains(t, f.sink.eventTypes(), "code_verified")
}

func TestVerifyCodeRejectsWrongCode(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)

	wrong := "1111"
	if f.sender.lastCode == wrong {
		wrong = "2222"
	}

	_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", wrong)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, f.sink.eventTypes(), "code_rejected")
}

func TestVerifyCodeRejectsMismatchedIdentity(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	code := f.sender.lastCode

	_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550199", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.VerifyCode(context.Background(), "0b7793a2-0000-4000-8000-000000000000", "+14155550100", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyCodeRejectsDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	code := f.sender.lastCode

	f.users.byID[login.User.ID].IsActive = false

	_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestVerifyCodeExpiresAndStaysExpired(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	code := f.sender.lastCode

	// Age the code past its window; the cache entry would have lapsed with
	// its TTL, so evict it too.
	stored := f.codes.codes[login.User.ID][0]
	stored.CreatedAt = stored.CreatedAt.Add(-11 * time.Minute)
	require.NoError(t, f.otpCache.DeleteOTP(context.Background(), "+14155550100"))

	_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, stored.IsActive, "first check past the window should retire the code")

	// The flip is permanent: the same code never validates again.
	_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyCodeRejectsMalformedCode(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)

	for _, code := range []string{"", "123", "12345"} {
		_, err = f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", code)
		assert.ErrorIs(t, err, ErrValidation, "code %q", code)
	}
}

func TestResolveToken(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	token, err := f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", f.sender.lastCode)
	require.NoError(t, err)

	userID, err := f.svc.ResolveToken(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, userID)

	// Cold cache falls back to the repository and repopulates.
	f.tokenCache.entries = map[string]string{}
	userID, err = f.svc.ResolveToken(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, userID)

	_, err = f.svc.ResolveToken(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.ResolveToken(context.Background(), "short")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveTokenRejectsDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)

	login, err := f.svc.RequestLogin(context.Background(), "+14155550100")
	require.NoError(t, err)
	token, err := f.svc.VerifyCode(context.Background(), login.User.ID, "+14155550100", f.sender.lastCode)
	require.NoError(t, err)

	f.users.byID[login.User.ID].IsActive = false

	// A warm token cache must not let a disabled account through.
	_, err = f.svc.ResolveToken(context.Background(), token.Key)
	assert.ErrorIs(t, err, ErrUserDisabled)
}
