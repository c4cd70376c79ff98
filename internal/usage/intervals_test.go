package usage

import (
	"testing"
	"time"

	"github.com/homenet-labs/warden/internal/storage"
)

var (
	testDayStart = time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)
	testDayEnd   = testDayStart.AddDate(0, 0, 1)
)

func at(hour, min int) time.Time {
	return testDayStart.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestDayRanges_ClosedSessions(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: at(9, 0), Active: true},
		{Timestamp: at(9, 30), Active: false},
		{Timestamp: at(14, 0), Active: true},
		{Timestamp: at(15, 0), Active: false},
	}

	ranges := dayRanges(events, testDayStart, at(16, 0))
	if len(ranges) != 2 {
		t.Fatalf("Expected 2 ranges, got %d", len(ranges))
	}
	if !ranges[0].Begin.Equal(at(9, 0)) || !ranges[0].End.Equal(at(9, 30)) {
		t.Errorf("Unexpected first range: %+v", ranges[0])
	}
	if !ranges[1].Begin.Equal(at(14, 0)) || !ranges[1].End.Equal(at(15, 0)) {
		t.Errorf("Unexpected second range: %+v", ranges[1])
	}
}

func TestDayRanges_OpenSessionRunsUntilNow(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: at(9, 0), Active: true},
	}

	ranges := dayRanges(events, testDayStart, at(9, 45))
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if !ranges[0].End.Equal(at(9, 45)) {
		t.Errorf("Expected open range to end at now, got %v", ranges[0].End)
	}
}

func TestDayRanges_DropsPreviousDays(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: testDayStart.Add(-5 * time.Hour), Active: true},
		{Timestamp: testDayStart.Add(-4 * time.Hour), Active: false},
		{Timestamp: at(10, 0), Active: true},
		{Timestamp: at(11, 0), Active: false},
	}

	ranges := dayRanges(events, testDayStart, at(12, 0))
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if !ranges[0].Begin.Equal(at(10, 0)) {
		t.Errorf("Expected yesterday's usage to be dropped, got %+v", ranges[0])
	}
}

func TestDayRanges_LeadingStopClosesMidnightSession(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: testDayStart.Add(-time.Hour), Active: true},
		{Timestamp: at(0, 30), Active: false},
	}

	ranges := dayRanges(events, testDayStart, at(8, 0))
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if !ranges[0].Begin.Equal(testDayStart) || !ranges[0].End.Equal(at(0, 30)) {
		t.Errorf("Expected range [midnight, 00:30], got %+v", ranges[0])
	}
}

func TestDayRanges_SessionStillOpenFromYesterday(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: testDayStart.Add(-time.Hour), Active: true},
	}

	ranges := dayRanges(events, testDayStart, at(1, 0))
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if !ranges[0].Begin.Equal(testDayStart) || !ranges[0].End.Equal(at(1, 0)) {
		t.Errorf("Expected range [midnight, now], got %+v", ranges[0])
	}
}

func TestDayRanges_CollapsesRepeatedStarts(t *testing.T) {
	events := []storage.UsageEvent{
		{Timestamp: at(9, 0), Active: true},
		{Timestamp: at(9, 10), Active: true},
		{Timestamp: at(9, 30), Active: false},
		{Timestamp: at(9, 40), Active: false},
	}

	ranges := dayRanges(events, testDayStart, at(10, 0))
	if len(ranges) != 1 {
		t.Fatalf("Expected 1 range, got %d", len(ranges))
	}
	if !ranges[0].Begin.Equal(at(9, 0)) || !ranges[0].End.Equal(at(9, 30)) {
		t.Errorf("Unexpected range: %+v", ranges[0])
	}
}

func TestMinimumIntervals_ShortSessionCharged(t *testing.T) {
	ranges := []interval{{Begin: at(9, 0), End: at(9, 2)}}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if len(got) != 1 {
		t.Fatalf("Expected 1 interval, got %d", len(got))
	}
	if !got[0].End.Equal(at(9, 10)) {
		t.Errorf("Expected short session charged until 09:10, got %v", got[0].End)
	}
}

func TestMinimumIntervals_LongSessionUnchanged(t *testing.T) {
	ranges := []interval{{Begin: at(9, 0), End: at(10, 0)}}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if !got[0].End.Equal(at(10, 0)) {
		t.Errorf("Expected long session to keep its end, got %v", got[0].End)
	}
}

func TestMinimumIntervals_ClipsAtMidnight(t *testing.T) {
	ranges := []interval{{Begin: at(23, 55), End: at(23, 58)}}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if !got[0].End.Equal(testDayEnd) {
		t.Errorf("Expected charge clipped at midnight, got %v", got[0].End)
	}
}

func TestMinimumIntervals_MergesCloseRanges(t *testing.T) {
	// Charged end of the first range is 09:10; the second range begins
	// 09:15, inside the 10 minute merge distance.
	ranges := []interval{
		{Begin: at(9, 0), End: at(9, 2)},
		{Begin: at(9, 15), End: at(9, 17)},
	}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if len(got) != 1 {
		t.Fatalf("Expected merged interval, got %d", len(got))
	}
	if !got[0].Begin.Equal(at(9, 0)) || !got[0].End.Equal(at(9, 25)) {
		t.Errorf("Expected merged interval [09:00, 09:25], got %+v", got[0])
	}
}

func TestMinimumIntervals_KeepsDistantRanges(t *testing.T) {
	ranges := []interval{
		{Begin: at(9, 0), End: at(9, 2)},
		{Begin: at(9, 25), End: at(9, 27)},
	}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if len(got) != 2 {
		t.Fatalf("Expected 2 intervals, got %d", len(got))
	}
}

func TestMinimumIntervals_MergeDoesNotShrink(t *testing.T) {
	// The second range ends before the charged end of the first; the
	// merged interval must keep the later end.
	ranges := []interval{
		{Begin: at(9, 0), End: at(9, 8)},
		{Begin: at(9, 11), End: at(9, 12)},
	}

	got := minimumIntervals(ranges, 10*time.Minute, testDayEnd)
	if len(got) != 1 {
		t.Fatalf("Expected merged interval, got %d", len(got))
	}
	if !got[0].End.Equal(at(9, 22)) {
		t.Errorf("Expected merged end 09:22, got %v", got[0].End)
	}
}

func TestUsedAndAccounted_OpenSession(t *testing.T) {
	// Session started at 09:00, now is 09:02: charged 10 minutes but
	// only 2 have elapsed.
	intervals := []interval{{Begin: at(9, 0), End: at(9, 10)}}

	used, accounted := usedAndAccounted(intervals, at(9, 2))
	if accounted != 10*time.Minute {
		t.Errorf("Expected 10m accounted, got %v", accounted)
	}
	if used != 2*time.Minute {
		t.Errorf("Expected 2m used, got %v", used)
	}
}

func TestUsedAndAccounted_PastIntervalsCountFully(t *testing.T) {
	intervals := []interval{
		{Begin: at(9, 0), End: at(9, 10)},
		{Begin: at(11, 0), End: at(11, 30)},
	}

	used, accounted := usedAndAccounted(intervals, at(12, 0))
	if accounted != 40*time.Minute {
		t.Errorf("Expected 40m accounted, got %v", accounted)
	}
	if used != 40*time.Minute {
		t.Errorf("Expected 40m used, got %v", used)
	}
}
