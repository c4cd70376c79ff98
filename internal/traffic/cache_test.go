package traffic

import (
	"testing"
	"time"
)

type fakeSource struct {
	activity map[string]time.Time
	calls    int
}

func (f *fakeSource) LastActivity(deviceID string) (time.Time, bool) {
	f.calls++
	ts, ok := f.activity[deviceID]
	return ts, ok
}

func (f *fakeSource) RecordActivity(deviceID string, ts time.Time) {
	if f.activity == nil {
		f.activity = make(map[string]time.Time)
	}
	f.activity[deviceID] = ts
}

func TestCachedSource_CachesHits(t *testing.T) {
	ts := time.Date(2024, 3, 18, 14, 0, 0, 0, time.UTC)
	src := &fakeSource{activity: map[string]time.Time{"device-1": ts}}
	cached := NewCachedSource(src, 16, time.Minute)

	for i := 0; i < 3; i++ {
		got, ok := cached.LastActivity("device-1")
		if !ok || !got.Equal(ts) {
			t.Fatalf("Iteration %d: expected %v, got %v (ok=%v)", i, ts, got, ok)
		}
	}

	if src.calls != 1 {
		t.Errorf("Expected 1 source call, got %d", src.calls)
	}
}

func TestCachedSource_CachesMisses(t *testing.T) {
	src := &fakeSource{}
	cached := NewCachedSource(src, 16, time.Minute)

	for i := 0; i < 3; i++ {
		if _, ok := cached.LastActivity("unknown"); ok {
			t.Fatal("Expected no activity for unknown device")
		}
	}

	if src.calls != 1 {
		t.Errorf("Expected 1 source call, got %d", src.calls)
	}
}

func TestCachedSource_RecordRefreshesCache(t *testing.T) {
	src := &fakeSource{}
	cached := NewCachedSource(src, 16, time.Minute)

	// Prime a negative entry
	if _, ok := cached.LastActivity("device-1"); ok {
		t.Fatal("Expected no activity before recording")
	}

	ts := time.Date(2024, 3, 18, 14, 0, 0, 0, time.UTC)
	cached.RecordActivity("device-1", ts)

	got, ok := cached.LastActivity("device-1")
	if !ok || !got.Equal(ts) {
		t.Errorf("Expected %v after record, got %v (ok=%v)", ts, got, ok)
	}
	if src.activity["device-1"] != ts {
		t.Error("Expected record to reach the underlying source")
	}
}
