package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-auth-service/internal/config"
)

func newTestHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   8 * 1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
	})
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("4821")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hash)
	assert.NotEmpty(t, result.Salt)
	assert.Equal(t, "argon2id-v1", result.Algorithm)

	match, err := h.VerifyOTP("4821", result)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = h.VerifyOTP("4822", result)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHashResultRoundTrip(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("4821")
	require.NoError(t, err)

	encoded, err := result.Encode()
	require.NoError(t, err)

	decoded, err := DecodeHashResult(encoded)
	require.NoError(t, err)

	match, err := h.VerifyOTP("4821", decoded)
	require.NoError(t, err)
	assert.True(t, match)

	_, err = DecodeHashResult("not json")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestVerifyRejectsUnknownPepperVersion(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("4821")
	require.NoError(t, err)
	result.PepperVersion = 99

	_, err = h.VerifyOTP("4821", result)
	assert.Error(t, err)
}

func TestSaltsDiffer(t *testing.T) {
	h := newTestHasher()

	a, err := h.HashOTP("4821")
	require.NoError(t, err)
	b, err := h.HashOTP("4821")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
}
