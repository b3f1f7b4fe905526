package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

func setupRedis(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	publisher, err := NewRedisPublisher(mr.Addr(), "", 0, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to connect to test redis: %v", err)
	}
	t.Cleanup(func() { publisher.Close() })
	return publisher, mr
}

func TestLatestKey(t *testing.T) {
	if got := LatestKey("camera1"); got != "occupancy:camera1:latest" {
		t.Errorf("Unexpected key %q", got)
	}
}

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	if _, err := NewRedisPublisher("127.0.0.1:1", "", 0, logger.Discard()); err == nil {
		t.Error("Expected connection error")
	}
}

func TestRedisPublisher_PersistStoresAndPublishes(t *testing.T) {
	publisher, mr := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()
	sub := subscriber.Subscribe(ctx, MetricsChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	rec := models.MetricsRecord{
		Metrics: models.Metrics{
			CameraID:           "camera1",
			Timestamp:          time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			TotalPeople:        4,
			PotentialCustomers: 2,
			EmployeeNames:      []string{"Ana"},
		},
		ProcessingTimeMs: 42.5,
	}
	if err := publisher.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// Published copy
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("Expected a published message: %v", err)
	}
	var published models.MetricsRecord
	if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
		t.Fatalf("Invalid published JSON: %v", err)
	}
	if msg.Channel != MetricsChannel || published.TotalPeople != 4 || published.CameraID != "camera1" {
		t.Errorf("Unexpected message on %s: %+v", msg.Channel, published)
	}

	// Stored copy
	if ttl := mr.TTL(LatestKey("camera1")); ttl != latestTTL {
		t.Errorf("Expected TTL %v, got %v", latestTTL, ttl)
	}
	latest, err := publisher.Latest(ctx, "camera1")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil {
		t.Fatal("Expected a stored snapshot")
	}
	if latest.PotentialCustomers != 2 || latest.ProcessingTimeMs != 42.5 || !latest.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("Unexpected snapshot %+v", latest)
	}
	if len(latest.EmployeeNames) != 1 || latest.EmployeeNames[0] != "Ana" {
		t.Errorf("Unexpected employee names %v", latest.EmployeeNames)
	}
}

func TestRedisPublisher_LatestOverwritesAndExpires(t *testing.T) {
	publisher, mr := setupRedis(t)
	ctx := context.Background()

	for _, people := range []int{1, 6} {
		rec := models.MetricsRecord{Metrics: models.Metrics{CameraID: "camera1", TotalPeople: people}}
		if err := publisher.Persist(ctx, rec); err != nil {
			t.Fatalf("Persist failed: %v", err)
		}
	}

	latest, err := publisher.Latest(ctx, "camera1")
	if err != nil || latest == nil || latest.TotalPeople != 6 {
		t.Fatalf("Expected the newest snapshot, got %+v (err %v)", latest, err)
	}

	if other, err := publisher.Latest(ctx, "entrance"); err != nil || other != nil {
		t.Errorf("Expected no snapshot for an unknown camera, got %+v (err %v)", other, err)
	}

	mr.FastForward(latestTTL + time.Second)
	if expired, err := publisher.Latest(ctx, "camera1"); err != nil || expired != nil {
		t.Errorf("Expected the snapshot to expire, got %+v (err %v)", expired, err)
	}
}
