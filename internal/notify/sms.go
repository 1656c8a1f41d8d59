package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

// Sender delivers one-time codes to users out of band.
type Sender interface {
	SendCode(ctx context.Context, phoneNumber, code, verificationURL string) error
}

// LogSender writes the message to the service log instead of an SMS
// gateway. Used in development and as the default until a gateway is
// configured.
type LogSender struct {
	config *config.Config
}

func NewLogSender(cfg *config.Config) *LogSender {
	return &LogSender{config: cfg}
}

func (s *LogSender) SendCode(ctx context.Context, phoneNumber, code, verificationURL string) error {
	util.Info("SMS (log delivery)",
		zap.String("phone_number", phoneNumber),
		zap.String("body", fmt.Sprintf("Your verification code is %s. Verify at %s", code, verificationURL)))
	return nil
}
