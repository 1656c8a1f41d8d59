package models

import "time"

// Auth event types streamed to Kafka and recorded in ClickHouse.
const (
	EventLoginRequested   = "login_requested"
	EventCodeVerified     = "code_verified"
	EventCodeRejected     = "code_rejected"
	EventReferralRedeemed = "referral_redeemed"
	EventProfileUpdated   = "profile_updated"
)

type AuthEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	UserBucket  int       `json:"user_bucket"`
	DateBucket  string    `json:"date_bucket"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
