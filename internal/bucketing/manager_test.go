package bucketing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"otp-auth-service/internal/config"
)

func newTestManager() *Manager {
	return NewManager(&config.Config{
		Bucketing: config.BucketingConfig{
			UserBuckets:  256,
			EventBuckets: 64,
		},
	})
}

func TestBucketsAreStableAndInRange(t *testing.T) {
	m := newTestManager()

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("user-%d", i)
		bucket := m.UserBucket(id)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 256)
		assert.Equal(t, bucket, m.UserBucket(id), "bucket must be a pure function of the ID")

		event := m.EventBucket(id)
		assert.GreaterOrEqual(t, event, 0)
		assert.Less(t, event, 64)
	}
}

func TestDateBucketIsUTCDay(t *testing.T) {
	m := newTestManager()

	bucket := m.DateBucket()
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, bucket)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), bucket)
}

func TestBucketsSpread(t *testing.T) {
	m := newTestManager()

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[m.UserBucket(fmt.Sprintf("user-%d", i))] = true
	}

	// 1000 IDs over 256 buckets should touch most of them.
	assert.Greater(t, len(seen), 200)
}

func TestConcurrentBucketing(t *testing.T) {
	m := newTestManager()
	want := m.UserBucket("user-42")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, want, m.UserBucket("user-42"))
			}
		}()
	}
	wg.Wait()
}
