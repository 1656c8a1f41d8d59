package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the service, populated from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	OTP           OTPConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	ClickHouse    ClickHouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// OTPConfig controls the auth-code lifecycle.
type OTPConfig struct {
	// ExpireTime is the validity window of an issued code.
	ExpireTime time.Duration
	// VerificationBaseURL is used to build the next_page link returned by login.
	VerificationBaseURL string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers    []string
	EventTopic string
}

type ElasticsearchConfig struct {
	URL          string
	Username     string
	Password     string
	ProfileIndex string
}

type ClickHouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	Region  string
	KeyID   string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

var (
	cfg  *Config
	once sync.Once
)

// LoadConfig reads .env (when present) and builds the configuration singleton.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		cfg = &Config{
			Environment: GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         GetEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8000),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				AutoCertDir:  GetEnv("SERVER_AUTOCERT_DIR", "/var/cache/otp-auth/autocert"),
				Domain:       GetEnv("SERVER_DOMAIN", ""),
				Email:        GetEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      GetEnv("SERVER_KEY_FILE", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Logging: LoggingConfig{
				Level:  GetEnv("LOG_LEVEL", "info"),
				Format: GetEnv("LOG_FORMAT", "json"),
			},
			OTP: OTPConfig{
				ExpireTime:          getEnvDuration("OTP_EXPIRE_TIME", 10*time.Minute),
				VerificationBaseURL: GetEnv("VERIFICATION_BASE_URL", "http://127.0.0.1:8000"),
			},
			Redis: RedisConfig{
				URL:      GetEnv("REDIS_URL", "redis://localhost:6379"),
				Password: GetEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
				Keyspace: GetEnv("SCYLLA_KEYSPACE", "otp_auth"),
				Username: GetEnv("SCYLLA_USERNAME", ""),
				Password: GetEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:    getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				EventTopic: GetEnv("KAFKA_EVENT_TOPIC", "auth-events"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:          GetEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:     GetEnv("ELASTICSEARCH_USERNAME", ""),
				Password:     GetEnv("ELASTICSEARCH_PASSWORD", ""),
				ProfileIndex: GetEnv("ELASTICSEARCH_PROFILE_INDEX", "user-profiles"),
			},
			ClickHouse: ClickHouseConfig{
				URL:      GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: GetEnv("CLICKHOUSE_DATABASE", "auth_analytics"),
				Username: GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: GetEnv("CLICKHOUSE_PASSWORD", ""),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				Region:  GetEnv("KMS_REGION", "us-east-1"),
				KeyID:   GetEnv("KMS_KEY_ID", ""),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 1),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 4),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 30),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("USER_BUCKETS", 256),
				EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
			},
		}
	})

	return cfg
}

// Get returns the configuration singleton, loading it on first use.
func Get() *Config {
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetEnv returns the value of an environment variable or a fallback.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds, matching the original deployment.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
