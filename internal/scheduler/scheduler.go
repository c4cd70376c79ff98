package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/homenet-labs/warden/internal/clock"
	"github.com/rs/zerolog"
)

// Scheduler runs the daemon's background jobs: the periodic
// accounting and evaluation ticks and the daily ledger compaction.
// Each job runs sequentially in its own goroutine, so a slow cycle
// skips ticks instead of piling up.
type Scheduler struct {
	clock  clock.Clock
	loc    *time.Location
	logger zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func New(clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clk,
		loc:    loc,
		logger: logger.With().Str("component", "scheduler").Logger(),
		stop:   make(chan struct{}),
	}
}

// Every runs fn on a fixed interval until the scheduler is stopped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info().Str("job", name).Dur("interval", interval).Msg("Job scheduled")
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.run(name, fn)
			}
		}
	}()
}

// Daily runs fn once a day at the given local time (format "15:04").
func (s *Scheduler) Daily(name, at string, fn func()) error {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return fmt.Errorf("invalid daily schedule %q: %w", at, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			next := s.nextDaily(t.Hour(), t.Minute())
			s.logger.Debug().Str("job", name).Time("next", next).Msg("Daily job scheduled")

			timer := time.NewTimer(next.Sub(s.clock.Now()))
			select {
			case <-s.stop:
				timer.Stop()
				return
			case <-timer.C:
				s.run(name, fn)
			}
		}
	}()
	return nil
}

// Stop cancels all jobs and waits for running cycles to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", name).Interface("panic", r).Msg("Job panicked")
		}
	}()

	start := time.Now()
	fn()
	s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Job finished")
}

func (s *Scheduler) nextDaily(hour, minute int) time.Time {
	now := s.clock.Now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
