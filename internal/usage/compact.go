package usage

import (
	"context"
	"fmt"

	"github.com/homenet-labs/warden/internal/storage"
)

// Compact drops ledger entries that no longer influence today's
// accounting. The last pre-midnight event is retained so a session
// running across midnight keeps its carried-over state; a ledger that
// ends inactive before midnight is removed entirely.
func (e *Engine) Compact(ctx context.Context) error {
	dayStart := startOfDay(e.clock.Now(), e.loc)

	e.mu.Lock()
	defer e.mu.Unlock()

	for userID, events := range e.events {
		idx := 0
		for idx < len(events) && events[idx].Timestamp.Before(dayStart) {
			idx++
		}
		if idx == 0 {
			continue
		}

		if idx == len(events) && !events[idx-1].Active {
			if err := e.store.Delete(ctx, userID); err != nil {
				return fmt.Errorf("failed to delete ledger for %s: %w", userID, err)
			}
			delete(e.events, userID)
			delete(e.accounts, userID)
			e.logger.Debug().Str("user", userID).Msg("Removed stale usage ledger")
			continue
		}

		compacted := append([]storage.UsageEvent(nil), events[idx-1:]...)
		if err := e.store.Save(ctx, userID, compacted); err != nil {
			return fmt.Errorf("failed to save compacted ledger for %s: %w", userID, err)
		}
		e.events[userID] = compacted
	}

	e.logger.Info().Msg("Usage ledgers compacted")
	return nil
}
