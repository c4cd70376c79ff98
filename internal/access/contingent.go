package access

import (
	"time"

	"github.com/homenet-labs/warden/internal/directory"
)

// contingentApplies reports whether the contingent's window covers the
// given weekday and minute of day. Both bounds are inclusive.
func contingentApplies(c directory.Contingent, day time.Weekday, minute int) bool {
	if minute < c.FromMinutes || minute > c.TillMinutes {
		return false
	}

	switch c.OnDay {
	case directory.Weekday:
		return day != time.Saturday && day != time.Sunday
	case directory.Weekend:
		return day == time.Saturday || day == time.Sunday
	default:
		return int(c.OnDay) == directory.ISODay(day)
	}
}

// anyContingentApplies reports whether now falls inside at least one
// permitted window.
func anyContingentApplies(contingents []directory.Contingent, now time.Time) bool {
	day := now.Weekday()
	minute := now.Hour()*60 + now.Minute()
	for _, c := range contingents {
		if contingentApplies(c, day, minute) {
			return true
		}
	}
	return false
}
