package models

import "time"

// AuthCode is one issued one-time code. Many may exist per user; a code is
// never deleted, only flipped inactive the first time it is checked after
// its expiry window has passed.
type AuthCode struct {
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	CodeID    string    `db:"code_id"`
	Code      string    `db:"code"`
	IsActive  bool      `db:"is_active"`
}

// Expired reports whether the code is past the validity window at the given
// reference time.
func (c *AuthCode) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(c.CreatedAt) > window
}
