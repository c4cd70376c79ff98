package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homenet-labs/warden/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageEventStore struct {
	client *redis.Client
}

// LoadAll returns every user's event ledger.
func (s *usageEventStore) LoadAll(ctx context.Context) (map[string][]storage.UsageEvent, error) {
	userIDs, err := s.client.SMembers(ctx, "warden:usage:users").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger users: %w", err)
	}

	ledgers := make(map[string][]storage.UsageEvent, len(userIDs))
	if len(userIDs) == 0 {
		return ledgers, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.LRange(ctx, eventsKey(id), 0, -1)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil || len(raw) == 0 {
			continue
		}
		events, err := parseEvents(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ledger for %s: %w", userIDs[i], err)
		}
		ledgers[userIDs[i]] = events
	}

	return ledgers, nil
}

// Save atomically replaces a user's event ledger.
func (s *usageEventStore) Save(ctx context.Context, userID string, events []storage.UsageEvent) error {
	script := redis.NewScript(replaceEventsScript)

	keys := []string{eventsKey(userID), "warden:usage:users"}
	args := make([]interface{}, 0, len(events)+1)
	args = append(args, userID)
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal usage event: %w", err)
		}
		args = append(args, string(data))
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Delete removes a user's ledger entirely.
func (s *usageEventStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, eventsKey(userID)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, "warden:usage:users", userID).Err()
}

func eventsKey(userID string) string {
	return fmt.Sprintf("warden:usage:events:%s", userID)
}
