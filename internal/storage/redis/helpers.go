package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/homenet-labs/warden/internal/storage"
)

const timeFormat = time.RFC3339Nano

// parseEvents converts the raw ledger list entries to UsageEvents
func parseEvents(raw []string) ([]storage.UsageEvent, error) {
	events := make([]storage.UsageEvent, 0, len(raw))
	for _, entry := range raw {
		var e storage.UsageEvent
		if err := json.Unmarshal([]byte(entry), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// parseBonusRecord converts a Redis hash to a BonusRecord
func parseBonusRecord(data map[string]string) (*storage.BonusRecord, error) {
	grantedAt, err := time.Parse(timeFormat, data["granted_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse granted_at: %w", err)
	}

	minutes, err := strconv.Atoi(data["minutes"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse minutes: %w", err)
	}

	return &storage.BonusRecord{
		GrantedAt: grantedAt,
		Minutes:   minutes,
	}, nil
}
