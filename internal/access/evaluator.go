package access

import (
	"sync"
	"time"

	"github.com/homenet-labs/warden/internal/clock"
	"github.com/homenet-labs/warden/internal/directory"
	"github.com/homenet-labs/warden/internal/metrics"
	"github.com/homenet-labs/warden/internal/usage"
	"github.com/rs/zerolog"
)

// UsageService is the slice of the accounting engine the evaluator
// needs: reading accounts and force-closing exhausted sessions.
type UsageService interface {
	Account(userID string) usage.Account
	StopUsage(userID string) error
}

// Listener is notified with the full set of denied devices whenever
// any device's access state changes.
type Listener interface {
	OnAccessChanged(blocked []Decision)
}

// Config bundles the evaluator's collaborators.
type Config struct {
	Devices  directory.DeviceDirectory
	Users    directory.UserDirectory
	Profiles directory.ProfileDirectory
	Usage    UsageService
	Clock    clock.Clock
	Location *time.Location
	Enabled  bool
	Logger   zerolog.Logger
}

// Evaluator decides per device whether internet access is permitted
// right now, and keeps those decisions for constant-time lookup on the
// packet path.
type Evaluator struct {
	devices  directory.DeviceDirectory
	users    directory.UserDirectory
	profiles directory.ProfileDirectory
	usage    UsageService
	clock    clock.Clock
	loc      *time.Location
	enabled  bool
	logger   zerolog.Logger

	mu        sync.Mutex
	decisions map[string]Decision
	listeners []Listener
}

type evalResult struct {
	decision       Decision
	blockedProfile bool
	quotaDenied    bool
}

func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{
		devices:   cfg.Devices,
		users:     cfg.Users,
		profiles:  cfg.Profiles,
		usage:     cfg.Usage,
		clock:     cfg.Clock,
		loc:       cfg.Location,
		enabled:   cfg.Enabled,
		logger:    cfg.Logger.With().Str("component", "access").Logger(),
		decisions: make(map[string]Decision),
	}
}

// AddListener registers an access change listener.
func (ev *Evaluator) AddListener(l Listener) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.listeners = append(ev.listeners, l)
}

// IsAccessPermitted answers for a single device. Devices without a
// stored decision are permitted.
func (ev *Evaluator) IsAccessPermitted(deviceID string) bool {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	decision, ok := ev.decisions[deviceID]
	if !ok {
		return true
	}
	return decision.Permitted
}

// Restrictions returns the active restrictions for a device.
func (ev *Evaluator) Restrictions(deviceID string) []Restriction {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	decision, ok := ev.decisions[deviceID]
	if !ok {
		return nil
	}
	return append([]Restriction(nil), decision.Restrictions...)
}

// Decisions returns a snapshot of all stored decisions.
func (ev *Evaluator) Decisions() []Decision {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	out := make([]Decision, 0, len(ev.decisions))
	for _, d := range ev.decisions {
		out = append(out, d)
	}
	return out
}

// Refresh re-evaluates every device. When refreshDevices is true the
// directory is asked to re-query its backing source first.
func (ev *Evaluator) Refresh(refreshDevices bool) {
	metrics.EvaluationsTotal.Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.EvaluationErrors.Inc()
			ev.logger.Error().Interface("panic", r).Msg("Access evaluation panicked")
		}
	}()

	now := ev.clock.Now()
	devices := ev.devices.Devices(refreshDevices)

	var stops []string
	anyChanged := false

	ev.mu.Lock()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		res := ev.evaluate(d, now)
		seen[d.ID] = true

		prev, known := ev.decisions[d.ID]
		changed := !known ||
			prev.Permitted != res.decision.Permitted ||
			!equalRestrictions(prev.Restrictions, res.decision.Restrictions) ||
			// Force a resync notification when a blocked profile still
			// evaluates as permitted.
			(res.decision.Permitted && res.blockedProfile)
		ev.decisions[d.ID] = res.decision

		if changed {
			anyChanged = true
			for _, r := range res.decision.Restrictions {
				metrics.RestrictionChanges.WithLabelValues(string(r)).Inc()
			}
			ev.logger.Info().
				Str("device", d.ID).
				Str("user", res.decision.UserID).
				Bool("permitted", res.decision.Permitted).
				Interface("restrictions", res.decision.Restrictions).
				Msg("Device access changed")
		}

		if res.quotaDenied && (!known || prev.Permitted) {
			stops = append(stops, res.decision.UserID)
		}
	}

	for id := range ev.decisions {
		if !seen[id] {
			delete(ev.decisions, id)
			anyChanged = true
		}
	}

	blocked := ev.blockedLocked()
	listeners := append([]Listener(nil), ev.listeners...)
	ev.mu.Unlock()

	metrics.BlockedDevices.Set(float64(len(blocked)))

	for _, userID := range stops {
		if err := ev.usage.StopUsage(userID); err != nil {
			ev.logger.Warn().Err(err).Str("user", userID).Msg("Failed to stop usage after quota exhaustion")
		}
	}

	if anyChanged {
		for _, l := range listeners {
			l.OnAccessChanged(blocked)
		}
	}
}

// evaluate computes a single device's decision. Missing users or
// profiles never block a device.
func (ev *Evaluator) evaluate(d directory.Device, now time.Time) evalResult {
	decision := Decision{DeviceID: d.ID, Permitted: true, EvaluatedAt: now}

	if !ev.enabled {
		return evalResult{decision: decision}
	}

	userID := d.OperatingUser()
	decision.UserID = userID
	if userID == "" {
		return evalResult{decision: decision}
	}

	user, ok := ev.users.UserByID(userID)
	if !ok {
		ev.logger.Info().Str("device", d.ID).Str("user", userID).Msg("Device operated by unknown user, access permitted")
		return evalResult{decision: decision}
	}

	profile, ok := ev.profiles.ProfileByID(user.ProfileID)
	if !ok {
		ev.logger.Info().Str("device", d.ID).Str("profile", user.ProfileID).Msg("User has no profile, access permitted")
		return evalResult{decision: decision}
	}

	var restrictions []Restriction

	if profile.TimeControlled {
		if len(profile.Contingents) == 0 {
			ev.logger.Warn().Str("profile", profile.ID).Msg("Time control without permitted windows, treating as disabled")
		} else if !anyContingentApplies(profile.Contingents, now.In(ev.loc)) {
			restrictions = append(restrictions, RestrictionTimeFrame)
		}
	}

	quotaDenied := false
	if profile.UsageControlled {
		account := ev.usage.Account(userID)
		if !account.Allowed {
			restrictions = append(restrictions, RestrictionMaxUsageTime)
			quotaDenied = true
		} else if !account.Active {
			restrictions = append(restrictions, RestrictionUsageTimeDisabled)
		}
	}

	if profile.InternetBlocked {
		restrictions = append(restrictions, RestrictionInternetBlocked)
	}

	decision.Permitted = len(restrictions) == 0
	decision.Restrictions = restrictions
	return evalResult{
		decision:       decision,
		blockedProfile: profile.InternetBlocked,
		quotaDenied:    quotaDenied,
	}
}

func (ev *Evaluator) blockedLocked() []Decision {
	var out []Decision
	for _, d := range ev.decisions {
		if !d.Permitted {
			out = append(out, d)
		}
	}
	return out
}

// OnDeviceChanged re-evaluates after a device change.
func (ev *Evaluator) OnDeviceChanged(d directory.Device) {
	ev.Refresh(false)
}

// OnDeviceDeleted drops the stored decision for the device.
func (ev *Evaluator) OnDeviceDeleted(d directory.Device) {
	ev.mu.Lock()
	delete(ev.decisions, d.ID)
	ev.mu.Unlock()
}

// OnDirectoryReset re-evaluates everything against the fresh inventory.
func (ev *Evaluator) OnDirectoryReset() {
	ev.Refresh(true)
}

// OnProfileChanged re-evaluates after a profile change.
func (ev *Evaluator) OnProfileChanged(p directory.Profile) {
	ev.Refresh(false)
}

// OnUsageAccountChanged re-evaluates after a usage account flip.
func (ev *Evaluator) OnUsageAccountChanged(userID string, account usage.Account) {
	ev.Refresh(false)
}
