package usage

import "time"

// Account is the computed usage state of a user for the current day.
type Account struct {
	// Allowed reports whether further usage fits inside today's quota.
	// Users without a quota are always allowed.
	Allowed bool
	// Active reports whether a usage session is currently open.
	Active bool
	// UsedTime is the usage measured so far today.
	UsedTime time.Duration
	// AccountedTime is the usage charged against the quota. Short
	// sessions are charged at least the minimum usage duration, so
	// AccountedTime >= UsedTime.
	AccountedTime time.Duration
	// MaxUsageTime is today's quota including any same-day bonus. Nil
	// means the user is not usage-controlled.
	MaxUsageTime *time.Duration
}

// Remaining returns the unconsumed part of today's quota.
func (a Account) Remaining() time.Duration {
	if a.MaxUsageTime == nil {
		return 0
	}
	left := *a.MaxUsageTime - a.AccountedTime
	if left < 0 {
		return 0
	}
	return left
}

// Listener is notified when a user's account flips between allowed
// and exhausted or between active and inactive.
type Listener interface {
	OnUsageAccountChanged(userID string, account Account)
}
