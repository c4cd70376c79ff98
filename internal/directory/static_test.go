package directory

import (
	"context"
	"testing"
	"time"

	"github.com/homenet-labs/warden/internal/config"
	"github.com/homenet-labs/warden/internal/storage"
	"github.com/rs/zerolog"
)

func testFamily() config.FamilyConfig {
	return config.FamilyConfig{
		Enabled: true,
		Users: []config.UserConfig{
			{ID: "alice", Name: "Alice", Profile: "kids"},
			{ID: "bob", Name: "Bob", Profile: "kids"},
		},
		Profiles: []config.ProfileConfig{
			{
				ID:              "kids",
				Name:            "Kids",
				TimeControlled:  true,
				UsageControlled: true,
				MaxUsageMinutes: map[string]int{"monday": 60, "saturday": 120},
				Contingents: []config.ContingentConfig{
					{Day: "weekday", From: "16:00", Till: "19:00"},
					{Day: "weekend", From: "10:00", Till: "20:00"},
				},
			},
		},
		Devices: []config.DeviceConfig{
			{ID: "tablet", Name: "Tablet", IP: "192.168.1.50", MAC: "aa:bb:cc:dd:ee:01", User: "alice"},
			{ID: "laptop", Name: "Laptop", IP: "192.168.1.51", MAC: "aa:bb:cc:dd:ee:02", User: "bob"},
		},
	}
}

type memBonusStore struct {
	records map[string]storage.BonusRecord
}

func newMemBonusStore() *memBonusStore {
	return &memBonusStore{records: make(map[string]storage.BonusRecord)}
}

func (m *memBonusStore) Get(ctx context.Context, profileID string) (*storage.BonusRecord, error) {
	rec, ok := m.records[profileID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (m *memBonusStore) Put(ctx context.Context, profileID string, rec storage.BonusRecord) error {
	m.records[profileID] = rec
	return nil
}

func (m *memBonusStore) Delete(ctx context.Context, profileID string) error {
	delete(m.records, profileID)
	return nil
}

func TestNewStatic_BuildsProfiles(t *testing.T) {
	s, err := NewStatic(context.Background(), testFamily(), newMemBonusStore(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	p, ok := s.ProfileByID("kids")
	if !ok {
		t.Fatal("Expected profile kids")
	}
	if !p.TimeControlled || !p.UsageControlled {
		t.Error("Expected both control modes enabled")
	}
	if got := p.MaxUsageMinutes[time.Monday]; got != 60 {
		t.Errorf("Expected 60 minutes on Monday, got %d", got)
	}
	if got := p.MaxUsageMinutes[time.Saturday]; got != 120 {
		t.Errorf("Expected 120 minutes on Saturday, got %d", got)
	}
	if len(p.Contingents) != 2 {
		t.Fatalf("Expected 2 contingents, got %d", len(p.Contingents))
	}
	if p.Contingents[0].OnDay != Weekday || p.Contingents[0].FromMinutes != 16*60 || p.Contingents[0].TillMinutes != 19*60 {
		t.Errorf("Unexpected first contingent: %+v", p.Contingents[0])
	}
}

func TestNewStatic_LoadsPersistedBonus(t *testing.T) {
	bonuses := newMemBonusStore()
	granted := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	_ = bonuses.Put(context.Background(), "kids", storage.BonusRecord{GrantedAt: granted, Minutes: 30})

	s, err := NewStatic(context.Background(), testFamily(), bonuses, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	p, _ := s.ProfileByID("kids")
	if p.Bonus == nil {
		t.Fatal("Expected bonus to be loaded")
	}
	if p.Bonus.Minutes != 30 || !p.Bonus.GrantedAt.Equal(granted) {
		t.Errorf("Unexpected bonus: %+v", p.Bonus)
	}
}

func TestNewStatic_RejectsBadContingent(t *testing.T) {
	fam := testFamily()
	fam.Profiles[0].Contingents = []config.ContingentConfig{
		{Day: "monday", From: "19:00", Till: "16:00"},
	}

	if _, err := NewStatic(context.Background(), fam, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for window ending before it starts")
	}
}

func TestStatic_SaveBonusTimePersists(t *testing.T) {
	bonuses := newMemBonusStore()
	s, err := NewStatic(context.Background(), testFamily(), bonuses, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	granted := time.Date(2024, 3, 18, 15, 0, 0, 0, time.UTC)
	if err := s.SaveBonusTime("kids", &BonusTime{GrantedAt: granted, Minutes: 15}); err != nil {
		t.Fatalf("SaveBonusTime failed: %v", err)
	}

	p, _ := s.ProfileByID("kids")
	if p.Bonus == nil || p.Bonus.Minutes != 15 {
		t.Errorf("Expected in-memory bonus of 15 minutes, got %+v", p.Bonus)
	}
	if rec, ok := bonuses.records["kids"]; !ok || rec.Minutes != 15 {
		t.Errorf("Expected persisted bonus of 15 minutes, got %+v", rec)
	}

	if err := s.SaveBonusTime("kids", nil); err != nil {
		t.Fatalf("SaveBonusTime(nil) failed: %v", err)
	}
	if _, ok := bonuses.records["kids"]; ok {
		t.Error("Expected persisted bonus to be cleared")
	}
}

func TestStatic_UsersByProfile(t *testing.T) {
	s, err := NewStatic(context.Background(), testFamily(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	users := s.UsersByProfile("kids")
	if len(users) != 2 {
		t.Fatalf("Expected alice and bob on the kids profile, got %d users", len(users))
	}
	if got := s.UsersByProfile("nope"); len(got) != 0 {
		t.Errorf("Expected no users for unknown profile, got %d", len(got))
	}
}

func TestStatic_SaveBonusTimeUnknownProfile(t *testing.T) {
	s, err := NewStatic(context.Background(), testFamily(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}
	if err := s.SaveBonusTime("nope", &BonusTime{Minutes: 10}); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

type recordingDeviceListener struct {
	changed []Device
	resets  int
}

func (r *recordingDeviceListener) OnDeviceChanged(d Device) { r.changed = append(r.changed, d) }
func (r *recordingDeviceListener) OnDeviceDeleted(d Device) {}
func (r *recordingDeviceListener) OnDirectoryReset()        { r.resets++ }

func TestStatic_ReloadNotifiesReset(t *testing.T) {
	s, err := NewStatic(context.Background(), testFamily(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	l := &recordingDeviceListener{}
	s.AddDeviceListener(l)

	fam := testFamily()
	fam.Devices = fam.Devices[:1]
	if err := s.Reload(context.Background(), fam); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if l.resets != 1 {
		t.Errorf("Expected 1 reset notification, got %d", l.resets)
	}
	if got := len(s.Devices(false)); got != 1 {
		t.Errorf("Expected 1 device after reload, got %d", got)
	}
}

func TestStatic_SetOperatingUser(t *testing.T) {
	s, err := NewStatic(context.Background(), testFamily(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStatic failed: %v", err)
	}

	l := &recordingDeviceListener{}
	s.AddDeviceListener(l)

	if err := s.SetOperatingUser("tablet", "bob"); err != nil {
		t.Fatalf("SetOperatingUser failed: %v", err)
	}
	if len(l.changed) != 1 || l.changed[0].OperatingUser() != "bob" {
		t.Errorf("Expected change notification with operating user bob, got %+v", l.changed)
	}

	for _, d := range s.Devices(false) {
		if d.ID == "tablet" && d.OperatingUser() != "bob" {
			t.Errorf("Expected tablet operated by bob, got %q", d.OperatingUser())
		}
	}
}

func TestDevice_OperatingUserFallback(t *testing.T) {
	d := Device{AssignedUserID: "alice"}
	if got := d.OperatingUser(); got != "alice" {
		t.Errorf("Expected fallback to assigned user, got %q", got)
	}
	d.OperatingUserID = "bob"
	if got := d.OperatingUser(); got != "bob" {
		t.Errorf("Expected operating user, got %q", got)
	}
}

func TestISODay(t *testing.T) {
	cases := []struct {
		day  time.Weekday
		want int
	}{
		{time.Monday, 1},
		{time.Wednesday, 3},
		{time.Saturday, 6},
		{time.Sunday, 7},
	}
	for _, c := range cases {
		if got := ISODay(c.day); got != c.want {
			t.Errorf("ISODay(%v): expected %d, got %d", c.day, c.want, got)
		}
	}
}

func TestBonusTime_GrantedSameDay(t *testing.T) {
	loc := time.UTC
	granted := time.Date(2024, 3, 18, 23, 30, 0, 0, loc)

	b := &BonusTime{GrantedAt: granted, Minutes: 30}
	if !b.GrantedSameDay(time.Date(2024, 3, 18, 23, 59, 0, 0, loc), loc) {
		t.Error("Expected same-day grant to be honored")
	}
	if b.GrantedSameDay(time.Date(2024, 3, 19, 0, 1, 0, 0, loc), loc) {
		t.Error("Expected grant to lapse after midnight")
	}

	var none *BonusTime
	if none.GrantedSameDay(time.Now(), loc) {
		t.Error("Expected nil bonus to report false")
	}
}
