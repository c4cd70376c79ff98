package access

import "time"

// Restriction names a reason internet access is denied to a device.
type Restriction string

const (
	// RestrictionTimeFrame: outside every permitted time window.
	RestrictionTimeFrame Restriction = "TIME_FRAME"
	// RestrictionMaxUsageTime: today's usage quota is exhausted.
	RestrictionMaxUsageTime Restriction = "MAX_USAGE_TIME"
	// RestrictionUsageTimeDisabled: quota remains but no usage session
	// is running.
	RestrictionUsageTimeDisabled Restriction = "USAGE_TIME_DISABLED"
	// RestrictionInternetBlocked: the profile blocks internet access
	// outright.
	RestrictionInternetBlocked Restriction = "INTERNET_ACCESS_BLOCKED"
)

// Decision is the evaluated access state of a single device.
type Decision struct {
	DeviceID     string
	UserID       string
	Permitted    bool
	Restrictions []Restriction
	EvaluatedAt  time.Time
}

func equalRestrictions(a, b []Restriction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasRestriction(rs []Restriction, r Restriction) bool {
	for _, candidate := range rs {
		if candidate == r {
			return true
		}
	}
	return false
}
