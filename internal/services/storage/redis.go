package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

const (
	MetricsChannel = "occupancy:metrics"
	latestTTL      = 5 * time.Minute
)

// LatestKey is the Redis key holding the newest snapshot for a camera.
func LatestKey(cameraID string) string {
	return fmt.Sprintf("occupancy:%s:latest", cameraID)
}

// RedisPublisher stores the latest metrics per camera and publishes every
// record on MetricsChannel.
type RedisPublisher struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisPublisher(addr, password string, db int, log *logger.Logger) (*RedisPublisher, error) {
	log = log.WithField("component", "redis")
	log.Info("Connecting to Redis at %s...", addr)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Successfully connected to Redis")
	return &RedisPublisher{client: client, logger: log}, nil
}

func (p *RedisPublisher) Persist(ctx context.Context, rec models.MetricsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, LatestKey(rec.CameraID), data, latestTTL)
	pipe.Publish(ctx, MetricsChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot stored for a camera, or nil when none.
func (p *RedisPublisher) Latest(ctx context.Context, cameraID string) (*models.MetricsRecord, error) {
	data, err := p.client.Get(ctx, LatestKey(cameraID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest metrics: %w", err)
	}

	var rec models.MetricsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode latest metrics: %w", err)
	}
	return &rec, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
