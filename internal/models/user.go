package models

import "time"

// User is an identity keyed by its unique E.164 phone number. A referral
// code is assigned lazily; referred_by_id is written at most once.
type User struct {
	UserBucket     int        `db:"user_bucket" json:"-"`
	ID             string     `db:"user_id" json:"id"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	PhoneEncrypted []byte     `db:"phone_encrypted" json:"-"`
	PhoneKeyID     string     `db:"phone_key_id" json:"-"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	ReferralCode   string     `db:"referral_code" json:"referral_code,omitempty"`
	ReferredByID   string     `db:"referred_by_id" json:"referred_by_id,omitempty"`
	IsVerified     bool       `db:"is_verified" json:"is_verified"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
