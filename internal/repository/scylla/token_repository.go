package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

type tokenRepository struct {
	client *ScyllaClient
}

func NewTokenRepository(client *ScyllaClient, logger *zap.Logger) TokenRepository {
	return &tokenRepository{client: client}
}

func (r *tokenRepository) GetOrCreate(ctx context.Context, userID, freshKey string) (*models.AuthToken, bool, error) {
	// Plain read first; tokens never rotate, so after the first issuance
	// every call is served without paying for the conditional insert.
	var existing models.AuthToken
	read := r.client.Prepared.GetTokenByUser.WithContext(ctx).Bind(userID)
	err := r.client.ScanWithRetry(read, &existing.UserID, &existing.Key, &existing.CreatedAt)
	if err == nil {
		return &existing, false, nil
	}
	if err != gocql.ErrNotFound {
		return nil, false, fmt.Errorf("failed to read auth token: %w", err)
	}

	now := time.Now().UTC()

	// The per-user table is the uniqueness authority; the by-key mapping is
	// written only after a successful claim.
	claim := r.client.Session.Query(`
        INSERT INTO auth_tokens_by_user (user_id, token_key, created_at)
        VALUES (?, ?, ?) IF NOT EXISTS`,
		userID, freshKey, now).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := claim.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to claim auth token",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to claim auth token: %w", err)
	}

	if !applied {
		existingKey, _ := previous["token_key"].(string)
		existingCreatedAt, _ := previous["created_at"].(time.Time)
		return &models.AuthToken{
			UserID:    userID,
			Key:       existingKey,
			CreatedAt: existingCreatedAt,
		}, false, nil
	}

	mapping := r.client.Session.Query(`
        INSERT INTO auth_tokens_by_key (token_key, user_id, created_at)
        VALUES (?, ?, ?)`,
		freshKey, userID, now).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(mapping, 2); err != nil {
		util.Error("Failed to write token key mapping",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to write token key mapping: %w", err)
	}

	util.Info("Auth token created", zap.String("user_id", userID))

	return &models.AuthToken{UserID: userID, Key: freshKey, CreatedAt: now}, true, nil
}

func (r *tokenRepository) GetUserIDByKey(ctx context.Context, key string) (string, error) {
	var userID string

	query := r.client.Prepared.GetUserByTokenKey.WithContext(ctx).Bind(key)
	if err := r.client.ScanWithRetry(query, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return "", fmt.Errorf("%w: token", ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve token: %w", err)
	}

	return userID, nil
}
