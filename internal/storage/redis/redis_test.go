package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/homenet-labs/warden/internal/config"
	"github.com/homenet-labs/warden/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Host:         mr.Addr(), // Full address "host:port"
		Port:         0,         // Not used when host contains port
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestUsageEventStore_SaveAndLoadAll(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	events := store.UsageEvents()

	base := time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC)
	ledger := []storage.UsageEvent{
		{Timestamp: base, Active: true},
		{Timestamp: base.Add(30 * time.Minute), Active: false},
		{Timestamp: base.Add(2 * time.Hour), Active: true},
	}

	if err := events.Save(ctx, "user-1", ledger); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := events.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	got, ok := loaded["user-1"]
	if !ok {
		t.Fatal("Expected ledger for user-1")
	}
	if len(got) != len(ledger) {
		t.Fatalf("Expected %d events, got %d", len(ledger), len(got))
	}
	for i, e := range got {
		if !e.Timestamp.Equal(ledger[i].Timestamp) {
			t.Errorf("Event %d: expected timestamp %v, got %v", i, ledger[i].Timestamp, e.Timestamp)
		}
		if e.Active != ledger[i].Active {
			t.Errorf("Event %d: expected active=%v, got %v", i, ledger[i].Active, e.Active)
		}
	}
}

func TestUsageEventStore_SaveReplacesLedger(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	events := store.UsageEvents()

	base := time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC)
	if err := events.Save(ctx, "user-1", []storage.UsageEvent{
		{Timestamp: base, Active: true},
		{Timestamp: base.Add(time.Hour), Active: false},
	}); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	// Replace with the compacted ledger
	if err := events.Save(ctx, "user-1", []storage.UsageEvent{
		{Timestamp: base.Add(time.Hour), Active: false},
	}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := events.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(loaded["user-1"]) != 1 {
		t.Fatalf("Expected 1 event after replacement, got %d", len(loaded["user-1"]))
	}
}

func TestUsageEventStore_SaveEmptyRemovesLedger(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	events := store.UsageEvents()

	if err := events.Save(ctx, "user-1", []storage.UsageEvent{
		{Timestamp: time.Now(), Active: true},
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := events.Save(ctx, "user-1", nil); err != nil {
		t.Fatalf("Empty save failed: %v", err)
	}

	loaded, err := events.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if _, ok := loaded["user-1"]; ok {
		t.Error("Expected ledger to be removed after empty save")
	}
}

func TestUsageEventStore_Delete(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	events := store.UsageEvents()

	_ = events.Save(ctx, "user-1", []storage.UsageEvent{{Timestamp: time.Now(), Active: true}})
	_ = events.Save(ctx, "user-2", []storage.UsageEvent{{Timestamp: time.Now(), Active: true}})

	if err := events.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	loaded, err := events.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if _, ok := loaded["user-1"]; ok {
		t.Error("Expected user-1 ledger to be deleted")
	}
	if _, ok := loaded["user-2"]; !ok {
		t.Error("Expected user-2 ledger to survive")
	}
}

func TestActivityStore_RecordAndLast(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	activity := store.Activity()

	ts := time.Date(2024, 3, 18, 14, 30, 0, 0, time.UTC)
	if err := activity.Record(ctx, "device-1", ts); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := activity.Last(ctx, "device-1")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("Expected %v, got %v", ts, got)
	}
}

func TestActivityStore_LastNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Activity().Last(context.Background(), "unknown-device")
	if err != storage.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBonusStore_PutGetDelete(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	bonuses := store.Bonuses()

	rec := storage.BonusRecord{
		GrantedAt: time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC),
		Minutes:   30,
	}

	if err := bonuses.Put(ctx, "profile-1", rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := bonuses.Get(ctx, "profile-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.GrantedAt.Equal(rec.GrantedAt) {
		t.Errorf("Expected GrantedAt %v, got %v", rec.GrantedAt, got.GrantedAt)
	}
	if got.Minutes != rec.Minutes {
		t.Errorf("Expected Minutes %d, got %d", rec.Minutes, got.Minutes)
	}

	if err := bonuses.Delete(ctx, "profile-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := bonuses.Get(ctx, "profile-1"); err != storage.ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
