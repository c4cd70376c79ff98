package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/homenet-labs/warden/internal/storage"
	"github.com/redis/go-redis/v9"
)

// activityTTL bounds how long a last-seen timestamp is kept. Anything
// older is useless for idle detection anyway.
const activityTTL = 7 * 24 * time.Hour

type activityStore struct {
	client *redis.Client
}

// Record stores the last-seen activity timestamp for a device.
func (s *activityStore) Record(ctx context.Context, deviceID string, ts time.Time) error {
	return s.client.Set(ctx, activityKey(deviceID), ts.Format(time.RFC3339Nano), activityTTL).Err()
}

// Last returns the last-seen activity timestamp for a device.
func (s *activityStore) Last(ctx context.Context, deviceID string) (time.Time, error) {
	raw, err := s.client.Get(ctx, activityKey(deviceID)).Result()
	if err == redis.Nil {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse activity timestamp: %w", err)
	}
	return ts, nil
}

func activityKey(deviceID string) string {
	return fmt.Sprintf("warden:activity:%s", deviceID)
}
