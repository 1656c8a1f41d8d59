package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

// PreparedStatements holds the statements used on every hot path. Conditional
// (LWT) statements are built per call because gocql binds their result scan
// to the query instance.
type PreparedStatements struct {
	CreateUser        *gocql.Query
	GetUserByID       *gocql.Query
	GetPhoneMapping   *gocql.Query
	GetReferralOwner  *gocql.Query
	UpdateProfile     *gocql.Query
	SetReferralCode   *gocql.Query
	MarkVerified      *gocql.Query
	CreateAuthCode    *gocql.Query
	RecentAuthCodes   *gocql.Query
	GetTokenByUser    *gocql.Query
	GetUserByTokenKey *gocql.Query
	ListReferred      *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 config.GetEnv("SCYLLA_CA_FILE", "/root/certs/ca.pem"),
			CertPath:               config.GetEnv("SCYLLA_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:                config.GetEnv("SCYLLA_KEY_FILE", "/root/certs/server.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, phone_number, phone_encrypted, phone_key_id,
            first_name, last_name, email, referral_code, referred_by_id,
            is_verified, is_active, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, phone_number, phone_encrypted, phone_key_id,
            first_name, last_name, email, referral_code, referred_by_id,
            is_verified, is_active, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetPhoneMapping = s.Session.Query(`
        SELECT user_bucket, user_id FROM phone_to_user WHERE phone_number = ?`)

	prepared.GetReferralOwner = s.Session.Query(`
        SELECT user_bucket, user_id FROM referral_codes WHERE code = ?`)

	prepared.UpdateProfile = s.Session.Query(`
        UPDATE users SET first_name = ?, last_name = ?, email = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.SetReferralCode = s.Session.Query(`
        UPDATE users SET referral_code = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.MarkVerified = s.Session.Query(`
        UPDATE users SET is_verified = true, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateAuthCode = s.Session.Query(`
        INSERT INTO auth_codes (user_id, created_at, code_id, code, is_active)
        VALUES (?, ?, ?, ?, ?)`)

	prepared.RecentAuthCodes = s.Session.Query(`
        SELECT user_id, created_at, code_id, code, is_active
        FROM auth_codes WHERE user_id = ? LIMIT ?`)

	prepared.GetTokenByUser = s.Session.Query(`
        SELECT user_id, token_key, created_at FROM auth_tokens_by_user WHERE user_id = ?`)

	prepared.GetUserByTokenKey = s.Session.Query(`
        SELECT user_id FROM auth_tokens_by_key WHERE token_key = ?`)

	prepared.ListReferred = s.Session.Query(`
        SELECT referred_id, referred_phone, created_at
        FROM referrals_by_referrer WHERE referrer_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
