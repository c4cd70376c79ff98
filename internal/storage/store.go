package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	UsageEvents() UsageEventStore
	Activity() ActivityStore
	Bonuses() BonusStore
}

// UsageEventStore persists the per-user usage event ledgers.
// The ledger is opaque to everything but the accounting engine: an
// append-only list of (timestamp, active) pairs per user id. Saves
// replace the whole list, which is how compaction is expressed too.
type UsageEventStore interface {
	LoadAll(ctx context.Context) (map[string][]UsageEvent, error)
	Save(ctx context.Context, userID string, events []UsageEvent) error
	Delete(ctx context.Context, userID string) error
}

// ActivityStore records the last-seen network activity per device.
// The traffic layer writes it; the accounting engine reads it for
// idle-session detection.
type ActivityStore interface {
	Record(ctx context.Context, deviceID string, ts time.Time) error
	Last(ctx context.Context, deviceID string) (time.Time, error)
}

// BonusStore persists same-day bonus time grants per profile.
type BonusStore interface {
	Get(ctx context.Context, profileID string) (*BonusRecord, error)
	Put(ctx context.Context, profileID string, rec BonusRecord) error
	Delete(ctx context.Context, profileID string) error
}
