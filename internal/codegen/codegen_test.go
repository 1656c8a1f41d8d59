package codegen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code, err := ReferralCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}

	// 100 draws from a 36^6 space colliding into a handful of values would
	// mean a broken generator.
	assert.Greater(t, len(seen), 90)
}

func TestAuthCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[1-9]{4}$`)

	for i := 0; i < 100; i++ {
		code, err := AuthCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestToken(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{40}$`)

	first, err := Token()
	require.NoError(t, err)
	assert.Regexp(t, pattern, first)

	second, err := Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
