package models

import "time"

// AuthToken is the opaque bearer secret bound 1:1 to a user. Created lazily
// on first successful verification and reused afterwards; no expiry, no
// rotation.
type AuthToken struct {
	UserID    string    `db:"user_id"`
	Key       string    `db:"token_key"`
	CreatedAt time.Time `db:"created_at"`
}
