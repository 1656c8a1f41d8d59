package util

import (
	"errors"
	"strings"
)

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// NormalizePhoneNumber strips formatting characters and validates the result
// against E.164: a leading plus, a non-zero first digit, 8 to 15 digits total.
func NormalizePhoneNumber(phone string) (string, error) {
	normalized := strings.TrimSpace(phone)
	for _, c := range []string{" ", "-", "(", ")"} {
		normalized = strings.ReplaceAll(normalized, c, "")
	}

	if !strings.HasPrefix(normalized, "+") {
		return "", ErrInvalidPhoneNumber
	}

	digits := normalized[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidPhoneNumber
	}
	if digits[0] == '0' {
		return "", ErrInvalidPhoneNumber
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", ErrInvalidPhoneNumber
		}
	}

	return normalized, nil
}

// SanitizeInput trims whitespace from free-form profile fields.
func SanitizeInput(s string) string {
	return strings.TrimSpace(s)
}
