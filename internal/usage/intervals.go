package usage

import (
	"time"

	"github.com/homenet-labs/warden/internal/storage"
)

// interval is a slice of the current day, Begin <= End.
type interval struct {
	Begin time.Time
	End   time.Time
}

func (i interval) duration() time.Duration {
	return i.End.Sub(i.Begin)
}

// dayRanges reconstructs today's usage ranges from the event ledger.
// Events before dayStart are dropped. A leading stop closes a session
// carried over midnight, yielding a range that starts at dayStart; a
// trailing start opens a range that runs until now.
func dayRanges(events []storage.UsageEvent, dayStart, now time.Time) []interval {
	var out []interval
	var open *time.Time
	carriedActive := false
	sawToday := false

	for _, e := range events {
		if e.Timestamp.Before(dayStart) {
			carriedActive = e.Active
			continue
		}

		if e.Active {
			if open == nil {
				ts := e.Timestamp
				open = &ts
			}
			sawToday = true
			continue
		}

		if open != nil {
			out = append(out, interval{Begin: *open, End: e.Timestamp})
			open = nil
		} else if !sawToday {
			// Session was running at midnight
			out = append(out, interval{Begin: dayStart, End: e.Timestamp})
		}
		sawToday = true
	}

	switch {
	case open != nil:
		end := now
		if end.Before(*open) {
			end = *open
		}
		out = append(out, interval{Begin: *open, End: end})
	case !sawToday && carriedActive:
		// Session opened yesterday and never closed
		out = append(out, interval{Begin: dayStart, End: now})
	}

	return out
}

// minimumIntervals charges each range at least min, clips everything
// at dayEnd, and merges ranges whose gap is shorter than min.
func minimumIntervals(ranges []interval, min time.Duration, dayEnd time.Time) []interval {
	var out []interval
	for _, r := range ranges {
		end := r.Begin.Add(min)
		if r.End.After(end) {
			end = r.End
		}
		if end.After(dayEnd) {
			end = dayEnd
		}

		if n := len(out); n > 0 && r.Begin.Sub(out[n-1].End) < min {
			if end.After(out[n-1].End) {
				out[n-1].End = end
			}
			continue
		}
		out = append(out, interval{Begin: r.Begin, End: end})
	}
	return out
}

// usedAndAccounted sums the minimum intervals. Accounted time counts
// the full charged intervals; used time clips the final interval at
// now so it only reflects usage that has actually elapsed.
func usedAndAccounted(intervals []interval, now time.Time) (used, accounted time.Duration) {
	for i, iv := range intervals {
		accounted += iv.duration()

		end := iv.End
		if i == len(intervals)-1 && end.After(now) {
			end = now
		}
		if end.After(iv.Begin) {
			used += end.Sub(iv.Begin)
		}
	}
	return used, accounted
}

// startOfDay returns local midnight of the day containing t.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
