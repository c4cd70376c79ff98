package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/homenet-labs/warden/internal/clock"
	"github.com/homenet-labs/warden/internal/directory"
	"github.com/homenet-labs/warden/internal/metrics"
	"github.com/homenet-labs/warden/internal/storage"
	"github.com/homenet-labs/warden/internal/traffic"
	"github.com/rs/zerolog"
)

// Config bundles the engine's collaborators and tuning knobs.
type Config struct {
	Store       storage.UsageEventStore
	Users       directory.UserDirectory
	Profiles    directory.ProfileDirectory
	Devices     directory.DeviceDirectory
	Traffic     traffic.Source
	Clock       clock.Clock
	Location    *time.Location
	MinUsage    time.Duration
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

// Engine keeps the per-user usage event ledgers and computes usage
// accounts from them. All state transitions go through the engine so
// concurrent starts, stops and accounting ticks stay consistent.
type Engine struct {
	store       storage.UsageEventStore
	users       directory.UserDirectory
	profiles    directory.ProfileDirectory
	devices     directory.DeviceDirectory
	traffic     traffic.Source
	clock       clock.Clock
	loc         *time.Location
	minUsage    time.Duration
	idleTimeout time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	events    map[string][]storage.UsageEvent
	accounts  map[string]Account
	listeners []Listener
}

type accountChange struct {
	userID  string
	account Account
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		store:       cfg.Store,
		users:       cfg.Users,
		profiles:    cfg.Profiles,
		devices:     cfg.Devices,
		traffic:     cfg.Traffic,
		clock:       cfg.Clock,
		loc:         cfg.Location,
		minUsage:    cfg.MinUsage,
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger.With().Str("component", "usage").Logger(),
		events:      make(map[string][]storage.UsageEvent),
		accounts:    make(map[string]Account),
	}
}

// Load restores the persisted ledgers and computes initial accounts.
func (e *Engine) Load(ctx context.Context) error {
	ledgers, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load usage ledgers: %w", err)
	}

	now := e.clock.Now()
	e.mu.Lock()
	e.events = ledgers
	for userID := range e.events {
		e.accounts[userID] = e.computeAccountLocked(userID, now)
	}
	e.mu.Unlock()

	e.logger.Info().Int("users", len(ledgers)).Msg("Usage ledgers loaded")
	return nil
}

// AddListener registers an account change listener.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// StartUsage opens a usage session for the user. It reports false when
// today's quota is already exhausted. Starting an already running
// session is a no-op.
func (e *Engine) StartUsage(userID string) (bool, error) {
	now := e.clock.Now()

	e.mu.Lock()
	account := e.computeAccountLocked(userID, now)
	if !account.Allowed {
		e.mu.Unlock()
		e.logger.Debug().Str("user", userID).Msg("Usage start rejected, quota exhausted")
		return false, nil
	}

	events := e.events[userID]
	if n := len(events); n > 0 && events[n-1].Active {
		e.mu.Unlock()
		return true, nil
	}

	e.events[userID] = append(events, storage.UsageEvent{Timestamp: now, Active: true})
	e.persistLocked(userID)
	changes := e.refreshAccountsLocked(now)
	e.mu.Unlock()

	e.logger.Info().Str("user", userID).Msg("Usage started")
	e.notify(changes)
	return true, nil
}

// StopUsage closes the user's usage session. Stopping an already
// stopped session is a no-op.
func (e *Engine) StopUsage(userID string) error {
	now := e.clock.Now()

	e.mu.Lock()
	events := e.events[userID]
	if n := len(events); n == 0 || !events[n-1].Active {
		e.mu.Unlock()
		return nil
	}

	e.events[userID] = append(events, storage.UsageEvent{Timestamp: now, Active: false})
	e.persistLocked(userID)
	changes := e.refreshAccountsLocked(now)
	e.mu.Unlock()

	e.logger.Info().Str("user", userID).Msg("Usage stopped")
	e.notify(changes)
	return nil
}

// StartUsageForDevice resolves the device's operating user and starts
// their session. A device without an operating user is a silent no-op.
func (e *Engine) StartUsageForDevice(deviceID string) (bool, error) {
	userID, err := e.operatingUser(deviceID)
	if err != nil {
		return false, err
	}
	if userID == "" {
		e.logger.Debug().Str("device", deviceID).Msg("Usage start ignored, device has no operating user")
		return false, nil
	}
	return e.StartUsage(userID)
}

// StopUsageForDevice resolves the device's operating user and stops
// their session. A device without an operating user is a silent no-op.
func (e *Engine) StopUsageForDevice(deviceID string) error {
	userID, err := e.operatingUser(deviceID)
	if err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	return e.StopUsage(userID)
}

func (e *Engine) operatingUser(deviceID string) (string, error) {
	for _, d := range e.devices.Devices(false) {
		if d.ID == deviceID {
			return d.OperatingUser(), nil
		}
	}
	return "", fmt.Errorf("unknown device: %s", deviceID)
}

// Account computes the user's current usage account.
func (e *Engine) Account(userID string) Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computeAccountLocked(userID, e.clock.Now())
}

// AccountUsages is the periodic accounting tick: it closes sessions
// whose devices have gone idle and refreshes all accounts, notifying
// listeners about users whose allowed or active state flipped.
func (e *Engine) AccountUsages() {
	now := e.clock.Now()

	e.mu.Lock()
	for userID, events := range e.events {
		n := len(events)
		if n == 0 || !events[n-1].Active {
			continue
		}
		stopTs, idle := e.idleStop(userID, events[n-1].Timestamp, now)
		if !idle {
			continue
		}

		e.events[userID] = append(events, storage.UsageEvent{Timestamp: stopTs, Active: false})
		e.persistLocked(userID)
		metrics.IdleAutoStops.Inc()
		e.logger.Info().
			Str("user", userID).
			Time("stopped_at", stopTs).
			Msg("Usage stopped after device inactivity")
	}

	// Auto-cutoff: close sessions whose quota ran out mid-session
	for userID, events := range e.events {
		n := len(events)
		if n == 0 || !events[n-1].Active {
			continue
		}
		account := e.computeAccountLocked(userID, now)
		if account.MaxUsageTime == nil || account.Allowed {
			continue
		}

		e.events[userID] = append(events, storage.UsageEvent{Timestamp: now, Active: false})
		e.persistLocked(userID)
		e.logger.Info().Str("user", userID).Msg("Usage stopped, quota exhausted")
	}
	changes := e.refreshAccountsLocked(now)
	e.mu.Unlock()

	e.notify(changes)
}

// idleStop decides whether an open session should be closed because
// the user's devices stopped producing traffic. The timeout only arms
// while the freshest activity still predates the start event; any
// traffic seen after the start keeps the session open. The stop
// timestamp never precedes the session start.
func (e *Engine) idleStop(userID string, startTs, now time.Time) (time.Time, bool) {
	var latest time.Time
	seen := false
	known := false
	for _, d := range e.devices.Devices(false) {
		if d.OperatingUser() != userID {
			continue
		}
		known = true
		if ts, ok := e.traffic.LastActivity(d.ID); ok && ts.After(latest) {
			latest = ts
			seen = true
		}
	}

	if !known || !seen {
		// Nothing to measure idleness against
		return now, true
	}

	if !latest.Before(startTs) {
		return time.Time{}, false
	}
	if now.Sub(latest) <= e.idleTimeout {
		return time.Time{}, false
	}
	return startTs, true
}

// AddBonusTimeForToday grants extra usage minutes for the current day
// to every user of the profile. Repeated grants on the same day
// accumulate; the grant lapses at midnight. The read-modify-write of
// the stored bonus happens under the engine mutex so concurrent
// grants serialize instead of losing an update.
func (e *Engine) AddBonusTimeForToday(profileID string, minutes int) (*directory.BonusTime, error) {
	now := e.clock.Now()

	e.mu.Lock()
	profile, ok := e.profiles.ProfileByID(profileID)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("unknown profile: %s", profileID)
	}

	bonus := &directory.BonusTime{GrantedAt: now, Minutes: minutes}
	if profile.Bonus.GrantedSameDay(now, e.loc) {
		bonus.Minutes += profile.Bonus.Minutes
	}
	// The stored total never goes negative; a revocation can at most
	// cancel today's bonus, not cut into the base quota.
	if bonus.Minutes < 0 {
		bonus.Minutes = 0
	}

	if err := e.profiles.SaveBonusTime(profileID, bonus); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to save bonus time: %w", err)
	}
	changes := e.refreshAccountsLocked(now, e.profileUsers(profileID)...)
	e.mu.Unlock()

	if minutes > 0 {
		metrics.BonusMinutesGranted.Add(float64(minutes))
	}

	e.logger.Info().
		Str("profile", profileID).
		Int("minutes", minutes).
		Int("total_today", bonus.Minutes).
		Msg("Bonus time granted")

	e.notify(changes)
	return bonus, nil
}

// profileUsers lists the ids of the users assigned to a profile.
func (e *Engine) profileUsers(profileID string) []string {
	users := e.users.UsersByProfile(profileID)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// computeAccountLocked derives the user's account for today from the
// ledger, the profile quota and any same-day bonus.
func (e *Engine) computeAccountLocked(userID string, now time.Time) Account {
	dayStart := startOfDay(now, e.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	events := e.events[userID]
	ranges := dayRanges(events, dayStart, now)
	intervals := minimumIntervals(ranges, e.minUsage, dayEnd)
	used, accounted := usedAndAccounted(intervals, now)

	limit := e.usageLimit(userID, now)
	allowed := true
	if limit != nil {
		allowed = accounted < *limit
	}

	active := false
	if n := len(events); n > 0 {
		active = events[n-1].Active
	}

	return Account{
		Allowed:       allowed,
		Active:        active,
		UsedTime:      used,
		AccountedTime: accounted,
		MaxUsageTime:  limit,
	}
}

// usageLimit computes today's quota. Nil means the user has no quota;
// a blocked profile has a quota of zero.
func (e *Engine) usageLimit(userID string, now time.Time) *time.Duration {
	user, ok := e.users.UserByID(userID)
	if !ok || user.ProfileID == "" {
		return nil
	}
	profile, ok := e.profiles.ProfileByID(user.ProfileID)
	if !ok || !profile.UsageControlled {
		return nil
	}
	if profile.InternetBlocked {
		zero := time.Duration(0)
		return &zero
	}

	minutes := profile.MaxUsageMinutes[now.In(e.loc).Weekday()]
	if profile.Bonus.GrantedSameDay(now, e.loc) {
		minutes += profile.Bonus.Minutes
	}
	if minutes < 0 {
		minutes = 0
	}

	limit := time.Duration(minutes) * time.Minute
	return &limit
}

// refreshAccountsLocked recomputes accounts for every user with a
// ledger plus any extra users, so quota changes reach users who never
// produced a usage event.
func (e *Engine) refreshAccountsLocked(now time.Time, extra ...string) []accountChange {
	var changes []accountChange
	seen := make(map[string]bool, len(e.events)+len(extra))

	refresh := func(userID string) {
		if seen[userID] {
			return
		}
		seen[userID] = true

		account := e.computeAccountLocked(userID, now)
		prev, known := e.accounts[userID]
		e.accounts[userID] = account
		metrics.AccountedMinutes.WithLabelValues(userID).Set(account.AccountedTime.Minutes())

		if !known || prev.Allowed != account.Allowed || prev.Active != account.Active {
			changes = append(changes, accountChange{userID: userID, account: account})
		}
	}

	for userID := range e.events {
		refresh(userID)
	}
	for _, userID := range extra {
		refresh(userID)
	}
	return changes
}

func (e *Engine) notify(changes []accountChange) {
	if len(changes) == 0 {
		return
	}

	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, c := range changes {
		for _, l := range listeners {
			l.OnUsageAccountChanged(c.userID, c.account)
		}
	}
}

func (e *Engine) persistLocked(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.store.Save(ctx, userID, e.events[userID]); err != nil {
		e.logger.Warn().Err(err).Str("user", userID).Msg("Failed to persist usage ledger")
	}
}
