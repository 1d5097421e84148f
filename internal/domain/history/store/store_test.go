package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"formula-ocr-server/internal/domain/history/model"
	"formula-ocr-server/internal/platform/storage"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestRecord(i int) model.Record {
	return model.Record{
		ID:         fmt.Sprintf("rec-%d", i),
		Model:      "vision",
		Latex:      fmt.Sprintf("x^%d", i),
		Status:     model.StatusSuccess,
		Attempts:   1,
		DurationMs: int64(i),
		CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		Metadata:   map[string]any{"filename": fmt.Sprintf("f%d.png", i)},
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Save(ctx, newTestRecord(i)); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "rec-3" || recent[1].ID != "rec-2" {
		t.Fatalf("unexpected recent order: %+v", recent)
	}

	got, err := s.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Latex != "x^1" || got.Metadata["filename"] != "f1.png" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	failed := newTestRecord(4)
	failed.Status = model.StatusFailed
	failed.ErrorKind = "upstream"
	if err := s.Save(ctx, failed); err != nil {
		t.Fatalf("Save failed record: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["type"] == nil {
		t.Fatalf("stats missing type: %+v", stats)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory(Config{Capacity: 10}))
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Config{Capacity: 2})
	for i := 1; i <= 3; i++ {
		_ = s.Save(ctx, newTestRecord(i))
	}

	if _, err := s.Get(ctx, "rec-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected oldest record to be evicted, got %v", err)
	}
	recent, _ := s.Recent(ctx, 0)
	if len(recent) != 2 || recent[0].ID != "rec-3" {
		t.Fatalf("unexpected ring contents: %+v", recent)
	}

	stats, _ := s.Stats(ctx)
	if stats["total"] != int64(3) || stats["stored"] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := storage.OpenSQLite(fmt.Sprintf("file:test-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	s, err := New(Config{Driver: DriverSQLite}, Dependencies{SQLiteDB: db})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	exerciseStore(t, s)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["total"] != int64(4) || stats["failed"] != int64(1) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := New(Config{
		Driver:   DriverRedis,
		Capacity: 10,
		TTL:      time.Minute,
		Redis:    &RedisConfig{Addr: mr.Addr(), Prefix: "test:"},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	exerciseStore(t, s)

	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(context.Background(), "rec-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected record to expire, got %v", err)
	}
	recent, err := s.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent after expiry: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected expired records to be skipped, got %d", len(recent))
	}
}

func TestFactory(t *testing.T) {
	if _, err := New(Config{Driver: "bogus"}, Dependencies{}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatal("expected error for sqlite without handle")
	}
	if _, err := New(Config{Driver: DriverRedis}, Dependencies{}); err == nil {
		t.Fatal("expected error for redis without config")
	}
	s, err := New(Config{}, Dependencies{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	stats, _ := s.Stats(context.Background())
	if stats["type"] != DriverMemory {
		t.Fatalf("expected memory default, got %v", stats["type"])
	}
}
