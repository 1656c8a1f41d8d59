package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"otp-auth-service/internal/config"
)

// Manager maps identifiers onto stable bucket numbers. User buckets spread
// the users table across partitions; event buckets key Kafka messages so one
// user's events stay ordered on a single partition.
type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
	config       *config.Config
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
		config:       cfg,
	}

	// Pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the consistent bucket for a user ID (0 to userBuckets-1).
func (m *Manager) UserBucket(userID string) int {
	return m.bucket(userID, m.userBuckets)
}

// EventBucket returns the bucket used as the Kafka message key for an
// identifier.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

// DateBucket returns the UTC date partition used by the analytics sink.
func (m *Manager) DateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) bucket(identifier string, buckets int) int {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(identifier))

	return int(h.Sum64() % uint64(buckets))
}
