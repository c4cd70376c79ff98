package directory

import (
	"fmt"
	"strings"
	"time"
)

// Device is a snapshot of a network device known to the appliance.
type Device struct {
	ID              string
	Name            string
	IP              string
	MAC             string
	AssignedUserID  string
	OperatingUserID string
	Online          bool
}

// OperatingUser returns the user currently operating the device,
// falling back to the assigned user.
func (d Device) OperatingUser() string {
	if d.OperatingUserID != "" {
		return d.OperatingUserID
	}
	return d.AssignedUserID
}

// User is a snapshot of a household user.
type User struct {
	ID        string
	Name      string
	ProfileID string
}

// Profile carries a user's access policy: the three independent
// control modes plus their configuration.
type Profile struct {
	ID              string
	Name            string
	TimeControlled  bool
	UsageControlled bool
	InternetBlocked bool
	Contingents     []Contingent
	MaxUsageMinutes map[time.Weekday]int
	Bonus           *BonusTime
}

// BonusTime is a same-day additive adjustment to the daily usage
// quota. Only a grant made on the current calendar day is honored.
type BonusTime struct {
	GrantedAt time.Time
	Minutes   int
}

// GrantedSameDay reports whether the bonus was granted on the same
// calendar day as now, in the appliance's time zone.
func (b *BonusTime) GrantedSameDay(now time.Time, loc *time.Location) bool {
	if b == nil {
		return false
	}
	y1, m1, d1 := b.GrantedAt.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ContingentDay selects the days a contingent applies to: an exact
// ISO day of week (1=Monday .. 7=Sunday), or one of the WEEKDAY /
// WEEKEND sentinels.
type ContingentDay int

const (
	Monday    ContingentDay = 1
	Tuesday   ContingentDay = 2
	Wednesday ContingentDay = 3
	Thursday  ContingentDay = 4
	Friday    ContingentDay = 5
	Saturday  ContingentDay = 6
	Sunday    ContingentDay = 7
	Weekday   ContingentDay = 8
	Weekend   ContingentDay = 9
)

// ISODay converts a time.Weekday to ISO numbering (1=Monday .. 7=Sunday).
func ISODay(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// ParseContingentDay parses a configured day name.
func ParseContingentDay(s string) (ContingentDay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monday", "mon":
		return Monday, nil
	case "tuesday", "tue":
		return Tuesday, nil
	case "wednesday", "wed":
		return Wednesday, nil
	case "thursday", "thu":
		return Thursday, nil
	case "friday", "fri":
		return Friday, nil
	case "saturday", "sat":
		return Saturday, nil
	case "sunday", "sun":
		return Sunday, nil
	case "weekday", "weekdays":
		return Weekday, nil
	case "weekend", "weekends":
		return Weekend, nil
	default:
		return 0, fmt.Errorf("unknown contingent day: %q", s)
	}
}

// String returns the canonical lowercase name of the day selector.
func (d ContingentDay) String() string {
	switch d {
	case Monday:
		return "monday"
	case Tuesday:
		return "tuesday"
	case Wednesday:
		return "wednesday"
	case Thursday:
		return "thursday"
	case Friday:
		return "friday"
	case Saturday:
		return "saturday"
	case Sunday:
		return "sunday"
	case Weekday:
		return "weekday"
	case Weekend:
		return "weekend"
	default:
		return fmt.Sprintf("day(%d)", int(d))
	}
}

// Contingent is a day-of-week plus time-of-day window during which
// internet access is permitted. FromMinutes and TillMinutes are
// inclusive minute-of-day bounds (0..1439).
type Contingent struct {
	OnDay       ContingentDay
	FromMinutes int
	TillMinutes int
}
