package redis

import (
	"context"
	"fmt"

	"github.com/homenet-labs/warden/internal/storage"
	"github.com/redis/go-redis/v9"
)

type bonusStore struct {
	client *redis.Client
}

// Get retrieves the bonus grant for a profile.
func (s *bonusStore) Get(ctx context.Context, profileID string) (*storage.BonusRecord, error) {
	data, err := s.client.HGetAll(ctx, bonusKey(profileID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseBonusRecord(data)
}

// Put stores the bonus grant for a profile, replacing any prior grant.
func (s *bonusStore) Put(ctx context.Context, profileID string, rec storage.BonusRecord) error {
	return s.client.HSet(ctx, bonusKey(profileID),
		"granted_at", rec.GrantedAt.Format(timeFormat),
		"minutes", rec.Minutes,
	).Err()
}

// Delete removes the bonus grant for a profile.
func (s *bonusStore) Delete(ctx context.Context, profileID string) error {
	return s.client.Del(ctx, bonusKey(profileID)).Err()
}

func bonusKey(profileID string) string {
	return fmt.Sprintf("warden:bonus:%s", profileID)
}
