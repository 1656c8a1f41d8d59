// Package codegen produces the short secrets used by the auth flow:
// referral codes, one-time auth codes, and bearer token keys.
package codegen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Zero is excluded so a code never reads ambiguously when displayed.
	authCodeAlphabet = "123456789"

	ReferralCodeLength = 6
	AuthCodeLength     = 4
	tokenBytes         = 20
)

// ReferralCode returns a 6-character code drawn uniformly from A-Z and 0-9.
// Uniqueness is the caller's responsibility (claimed against the store with
// a bounded retry loop).
func ReferralCode() (string, error) {
	return randomString(referralAlphabet, ReferralCodeLength)
}

// AuthCode returns a 4-digit one-time code drawn uniformly from 1-9.
func AuthCode() (string, error) {
	return randomString(authCodeAlphabet, AuthCodeLength)
}

// Token returns an opaque 40-character hex bearer token key.
func Token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
