package traffic

import (
	"context"
	"errors"
	"time"

	"github.com/homenet-labs/warden/internal/storage"
	"github.com/rs/zerolog"
)

// Source answers when a device was last seen producing traffic. The
// second return is false when no telemetry exists for the device.
type Source interface {
	LastActivity(deviceID string) (time.Time, bool)
}

// Recorder accepts activity observations from the capture path.
type Recorder interface {
	RecordActivity(deviceID string, ts time.Time)
}

// StoreSource reads and writes device activity through the activity
// store so observations survive a restart.
type StoreSource struct {
	activity storage.ActivityStore
	logger   zerolog.Logger
}

func NewStoreSource(activity storage.ActivityStore, logger zerolog.Logger) *StoreSource {
	return &StoreSource{
		activity: activity,
		logger:   logger.With().Str("component", "traffic").Logger(),
	}
}

// LastActivity returns the persisted last-seen timestamp for a device.
func (s *StoreSource) LastActivity(deviceID string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ts, err := s.activity.Last(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("device", deviceID).Msg("Failed to read device activity")
		}
		return time.Time{}, false
	}
	return ts, true
}

// RecordActivity persists an observation for a device.
func (s *StoreSource) RecordActivity(deviceID string, ts time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.activity.Record(ctx, deviceID, ts); err != nil {
		s.logger.Warn().Err(err).Str("device", deviceID).Msg("Failed to record device activity")
	}
}
