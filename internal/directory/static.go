package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/homenet-labs/warden/internal/config"
	"github.com/homenet-labs/warden/internal/storage"
	"github.com/rs/zerolog"
)

// Static is a directory built from the appliance's configuration
// file. Devices, users and profiles come from config; bonus time is
// the only mutable piece and is persisted through the bonus store.
type Static struct {
	bonuses storage.BonusStore
	logger  zerolog.Logger

	mu               sync.RWMutex
	devices          []Device
	users            map[string]User
	profiles         map[string]Profile
	deviceListeners  []DeviceListener
	profileListeners []ProfileListener
}

// NewStatic builds a directory from the family configuration and
// loads persisted bonus grants.
func NewStatic(ctx context.Context, fam config.FamilyConfig, bonuses storage.BonusStore, logger zerolog.Logger) (*Static, error) {
	s := &Static{
		bonuses: bonuses,
		logger:  logger.With().Str("component", "directory").Logger(),
	}
	if err := s.load(ctx, fam); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Static) load(ctx context.Context, fam config.FamilyConfig) error {
	users := make(map[string]User, len(fam.Users))
	for _, u := range fam.Users {
		users[u.ID] = User{ID: u.ID, Name: u.Name, ProfileID: u.Profile}
	}

	profiles := make(map[string]Profile, len(fam.Profiles))
	for _, p := range fam.Profiles {
		profile, err := buildProfile(p)
		if err != nil {
			return fmt.Errorf("profile %s: %w", p.ID, err)
		}

		if s.bonuses != nil {
			rec, err := s.bonuses.Get(ctx, p.ID)
			switch {
			case err == nil:
				profile.Bonus = &BonusTime{GrantedAt: rec.GrantedAt, Minutes: rec.Minutes}
			case errors.Is(err, storage.ErrNotFound):
				// No bonus granted
			default:
				return fmt.Errorf("failed to load bonus for profile %s: %w", p.ID, err)
			}
		}

		profiles[p.ID] = profile
	}

	devices := make([]Device, 0, len(fam.Devices))
	for _, d := range fam.Devices {
		devices = append(devices, Device{
			ID:             d.ID,
			Name:           d.Name,
			IP:             d.IP,
			MAC:            d.MAC,
			AssignedUserID: d.User,
			Online:         true,
		})
	}

	s.mu.Lock()
	s.users = users
	s.profiles = profiles
	s.devices = devices
	s.mu.Unlock()

	s.logger.Info().
		Int("devices", len(devices)).
		Int("users", len(users)).
		Int("profiles", len(profiles)).
		Msg("Directory loaded")

	return nil
}

func buildProfile(p config.ProfileConfig) (Profile, error) {
	profile := Profile{
		ID:              p.ID,
		Name:            p.Name,
		TimeControlled:  p.TimeControlled,
		UsageControlled: p.UsageControlled,
		InternetBlocked: p.InternetBlocked,
	}

	if len(p.MaxUsageMinutes) > 0 {
		profile.MaxUsageMinutes = make(map[time.Weekday]int, len(p.MaxUsageMinutes))
		for name, minutes := range p.MaxUsageMinutes {
			day, err := parseWeekday(name)
			if err != nil {
				return Profile{}, err
			}
			if minutes < 0 {
				return Profile{}, fmt.Errorf("negative usage limit for %s", name)
			}
			profile.MaxUsageMinutes[day] = minutes
		}
	}

	for _, c := range p.Contingents {
		onDay, err := ParseContingentDay(c.Day)
		if err != nil {
			return Profile{}, err
		}
		from, err := minuteOfDay(c.From)
		if err != nil {
			return Profile{}, fmt.Errorf("contingent from: %w", err)
		}
		till, err := minuteOfDay(c.Till)
		if err != nil {
			return Profile{}, fmt.Errorf("contingent till: %w", err)
		}
		if till < from {
			return Profile{}, fmt.Errorf("contingent window ends before it starts (%s..%s)", c.From, c.Till)
		}
		profile.Contingents = append(profile.Contingents, Contingent{
			OnDay:       onDay,
			FromMinutes: from,
			TillMinutes: till,
		})
	}

	return profile, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	day, err := ParseContingentDay(s)
	if err != nil {
		return 0, err
	}
	switch day {
	case Sunday:
		return time.Sunday, nil
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday:
		return time.Weekday(int(day)), nil
	default:
		return 0, fmt.Errorf("not an exact weekday: %q", s)
	}
}

func minuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Reload rebuilds the directory from a fresh configuration and tells
// device listeners to start over.
func (s *Static) Reload(ctx context.Context, fam config.FamilyConfig) error {
	if err := s.load(ctx, fam); err != nil {
		return err
	}

	s.mu.RLock()
	listeners := append([]DeviceListener(nil), s.deviceListeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.OnDirectoryReset()
	}
	return nil
}

// Devices returns a snapshot of the known devices.
func (s *Static) Devices(refresh bool) []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// AddDeviceListener registers a device change listener.
func (s *Static) AddDeviceListener(l DeviceListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceListeners = append(s.deviceListeners, l)
}

// UserByID resolves a user by id.
func (s *Static) UserByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// UsersByProfile returns the users assigned to a profile.
func (s *Static) UsersByProfile(profileID string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.ProfileID == profileID {
			out = append(out, u)
		}
	}
	return out
}

// ProfileByID resolves a profile by id.
func (s *Static) ProfileByID(id string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

// AddProfileListener registers a profile change listener.
func (s *Static) AddProfileListener(l ProfileListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileListeners = append(s.profileListeners, l)
}

// SaveBonusTime stores a profile's bonus grant (or clears it when nil)
// and persists it so the grant survives a restart.
func (s *Static) SaveBonusTime(profileID string, bonus *BonusTime) error {
	s.mu.Lock()
	p, ok := s.profiles[profileID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown profile: %s", profileID)
	}
	p.Bonus = bonus
	s.profiles[profileID] = p
	s.mu.Unlock()

	if s.bonuses == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if bonus == nil {
		return s.bonuses.Delete(ctx, profileID)
	}
	return s.bonuses.Put(ctx, profileID, storage.BonusRecord{
		GrantedAt: bonus.GrantedAt,
		Minutes:   bonus.Minutes,
	})
}

// SetOperatingUser points a device at a different operating user and
// notifies device listeners.
func (s *Static) SetOperatingUser(deviceID, userID string) error {
	s.mu.Lock()
	var changed *Device
	for i := range s.devices {
		if s.devices[i].ID == deviceID {
			s.devices[i].OperatingUserID = userID
			d := s.devices[i]
			changed = &d
			break
		}
	}
	listeners := append([]DeviceListener(nil), s.deviceListeners...)
	s.mu.Unlock()

	if changed == nil {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	for _, l := range listeners {
		l.OnDeviceChanged(*changed)
	}
	return nil
}
