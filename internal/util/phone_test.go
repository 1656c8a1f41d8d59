package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	valid := map[string]string{
		"+14155550100":      "+14155550100",
		" +1 415 555 0100 ": "+14155550100",
		"+1-415-555-0100":   "+14155550100",
		"+1 (415) 555-0100": "+14155550100",
		"+442071838750":     "+442071838750",
		"+12345678":         "+12345678",
		"+123456789012345":  "+123456789012345",
	}
	for input, want := range valid {
		got, err := NormalizePhoneNumber(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got)
	}

	invalid := []string{
		"",
		"4155550100",        // no plus
		"+0155550100",       // leading zero
		"+1234567",          // too short
		"+1234567890123456", // too long
		"+1415abc0100",      // letters
		"++14155550100",
	}
	for _, input := range invalid {
		_, err := NormalizePhoneNumber(input)
		assert.ErrorIs(t, err, ErrInvalidPhoneNumber, "input %q", input)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Ada", SanitizeInput("  Ada \n"))
	assert.Equal(t, "", SanitizeInput("   "))
}
