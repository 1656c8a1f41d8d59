package service

import (
	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/notify"
	"otp-auth-service/internal/repository/scylla"
)

// ServiceFactory creates and hands out service singletons.
type ServiceFactory struct {
	users      scylla.UserRepository
	codes      scylla.OTPRepository
	tokens     scylla.TokenRepository
	otpCache   OTPCache
	tokenCache TokenCache
	hasher     *hashing.Hasher
	encryptor  *encryption.Manager
	sender     notify.Sender
	events     EventSink
	esClient   *client.ESClient
	config     *config.Config
	logger     *zap.Logger

	authService    *AuthService
	profileService *ProfileService
}

func NewServiceFactory(
	users scylla.UserRepository,
	codes scylla.OTPRepository,
	tokens scylla.TokenRepository,
	otpCache OTPCache,
	tokenCache TokenCache,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	sender notify.Sender,
	events EventSink,
	esClient *client.ESClient,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		users:      users,
		codes:      codes,
		tokens:     tokens,
		otpCache:   otpCache,
		tokenCache: tokenCache,
		hasher:     hasher,
		encryptor:  encryptor,
		sender:     sender,
		events:     events,
		esClient:   esClient,
		config:     cfg,
		logger:     logger,
	}
}

func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.users,
			f.codes,
			f.tokens,
			f.otpCache,
			f.tokenCache,
			f.hasher,
			f.encryptor,
			f.sender,
			f.events,
			f.config,
		)
	}
	return f.authService
}

func (f *ServiceFactory) ProfileService() *ProfileService {
	if f.profileService == nil {
		f.profileService = NewProfileService(f.users, f.events, f.esClient, f.config)
	}
	return f.profileService
}
