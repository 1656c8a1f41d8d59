package service

import "errors"

var (
	ErrValidation          = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserDisabled        = errors.New("account disabled")
	ErrAlreadyRedeemed     = errors.New("referral already redeemed")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrNotFound            = errors.New("not found")
)
