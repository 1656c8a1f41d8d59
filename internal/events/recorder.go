package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

const recordTimeout = 10 * time.Second

// Recorder fans auth events out to Kafka and ClickHouse and keeps the
// profile search index current. Recording is best effort and never blocks
// or fails the request that produced the event.
type Recorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	buckets    *bucketing.Manager
	config     *config.Config
}

func NewRecorder(
	producer *client.KafkaProducer,
	clickhouse *client.ClickHouseClient,
	es *client.ESClient,
	buckets *bucketing.Manager,
	cfg *config.Config,
) *Recorder {
	return &Recorder{
		producer:   producer,
		clickhouse: clickhouse,
		es:         es,
		buckets:    buckets,
		config:     cfg,
	}
}

// EnsureSchema creates the ClickHouse events table if missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	return r.clickhouse.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS auth_events (
            event_id     String,
            event_type   LowCardinality(String),
            user_id      String,
            phone_number String,
            user_bucket  UInt16,
            date_bucket  LowCardinality(String),
            detail       String,
            occurred_at  DateTime64(3, 'UTC')
        ) ENGINE = MergeTree()
        PARTITION BY date_bucket
        ORDER BY (event_type, occurred_at)`)
}

// Record publishes the event in the background. The caller's context is not
// used so an already-finished request cannot cancel delivery.
func (r *Recorder) Record(event *models.AuthEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.UserBucket == 0 && event.UserID != "" {
		event.UserBucket = r.buckets.UserBucket(event.UserID)
	}
	if event.DateBucket == "" {
		event.DateBucket = r.buckets.DateBucket()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)

		if r.producer != nil {
			g.Go(func() error {
				payload, err := json.Marshal(event)
				if err != nil {
					return err
				}
				// Keyed by event bucket so one user's events stay on one
				// partition.
				key := strconv.Itoa(r.buckets.EventBucket(event.UserID))
				return r.producer.Produce(ctx, []byte(key), payload, map[string]string{
					"event_type": event.EventType,
				})
			})
		}

		if r.clickhouse != nil {
			g.Go(func() error {
				return r.clickhouse.BatchInsert(ctx, `
                INSERT INTO auth_events
                (event_id, event_type, user_id, phone_number, user_bucket, date_bucket, detail, occurred_at)`,
					[][]interface{}{{
						event.EventID, event.EventType, event.UserID, event.PhoneNumber,
						uint16(event.UserBucket), event.DateBucket, event.Detail, event.OccurredAt,
					}})
			})
		}

		if err := g.Wait(); err != nil {
			util.Warn("Failed to record auth event",
				zap.String("event_type", event.EventType),
				zap.String("user_id", event.UserID),
				zap.Error(err))
		}
	}()
}

// IndexProfile upserts the user's document in the profile search index.
func (r *Recorder) IndexProfile(user *models.User) {
	if r.es == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		doc := map[string]interface{}{
			"user_id":       user.ID,
			"phone_number":  user.PhoneNumber,
			"first_name":    user.FirstName,
			"last_name":     user.LastName,
			"email":         user.Email,
			"referral_code": user.ReferralCode,
			"is_verified":   user.IsVerified,
			"created_at":    user.CreatedAt,
		}

		resp, err := r.es.IndexDocument(ctx, r.config.Elasticsearch.ProfileIndex, user.ID, doc)
		if err != nil {
			util.Warn("Failed to index profile",
				zap.String("user_id", user.ID),
				zap.Error(err))
			return
		}
		defer resp.Body.Close()

		if resp.IsError() {
			util.Warn("Profile index request rejected",
				zap.String("user_id", user.ID),
				zap.String("status", resp.Status()))
		}
	}()
}
