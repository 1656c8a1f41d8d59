package scylla

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

type otpRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient, logger *zap.Logger) OTPRepository {
	return &otpRepository{client: client}
}

func (r *otpRepository) Create(ctx context.Context, code *models.AuthCode) error {
	insert := r.client.Prepared.CreateAuthCode.WithContext(ctx).Bind(
		code.UserID, code.CreatedAt, code.CodeID, code.Code, code.IsActive)

	if err := r.client.ExecuteWithRetry(insert, 2); err != nil {
		util.Error("Failed to store auth code",
			zap.String("user_id", code.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to store auth code: %w", err)
	}

	util.Debug("Auth code stored",
		zap.String("user_id", code.UserID),
		zap.String("code_id", code.CodeID))

	return nil
}

func (r *otpRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]*models.AuthCode, error) {
	iter := r.client.Prepared.RecentAuthCodes.WithContext(ctx).Bind(userID, limit).Iter()

	var codes []*models.AuthCode
	for {
		code := &models.AuthCode{}
		if !iter.Scan(&code.UserID, &code.CreatedAt, &code.CodeID, &code.Code, &code.IsActive) {
			break
		}
		codes = append(codes, code)
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to read auth codes",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read auth codes: %w", err)
	}

	return codes, nil
}

func (r *otpRepository) Deactivate(ctx context.Context, code *models.AuthCode) (bool, error) {
	// Conditional update so concurrent expiry checks flip the code exactly
	// once.
	update := r.client.Session.Query(`
        UPDATE auth_codes SET is_active = false
        WHERE user_id = ? AND created_at = ? AND code_id = ?
        IF is_active = true`,
		code.UserID, code.CreatedAt, code.CodeID).WithContext(ctx)

	var wasActive bool
	applied, err := update.ScanCAS(&wasActive)
	if err != nil {
		util.Error("Failed to deactivate auth code",
			zap.String("user_id", code.UserID),
			zap.String("code_id", code.CodeID),
			zap.Error(err))
		return false, fmt.Errorf("failed to deactivate auth code: %w", err)
	}
	if applied {
		code.IsActive = false
	}

	return applied, nil
}
