package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/database/databasetest"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db := databasetest.Open(t).DB
	return NewSQLiteStore(db), db
}

func insertDevice(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := database.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO devices (id, name, type, floor, location, status, is_active, created_at, updated_at)
		VALUES (?, ?, 'temperature', 1, 'living_room', 'offline', 1, ?, ?)`, id, "Device "+id, now, now)
	if err != nil {
		t.Fatalf("inserting device: %v", err)
	}
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	store, db := newTestStore(t)
	insertDevice(t, db, "temp_1")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []float64{20.5, 21.0, 21.5} {
		r := &Reading{DeviceID: "temp_1", Value: v, Unit: "°C", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if r.ID == 0 {
			t.Error("Append() did not set ID")
		}
	}

	got, err := store.List(ctx, "temp_1", Query{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() len = %d, want 3", len(got))
	}
	if got[0].Value != 21.5 || got[2].Value != 20.5 {
		t.Errorf("List() order = %v, %v; want newest first", got[0].Value, got[2].Value)
	}
	if got[0].Unit != "°C" || !got[0].Timestamp.Equal(base.Add(2*time.Minute)) {
		t.Errorf("List()[0] = %+v", got[0])
	}

	since, err := store.List(ctx, "temp_1", Query{Since: base.Add(30 * time.Second), Limit: 1})
	if err != nil {
		t.Fatalf("List(since) error = %v", err)
	}
	if len(since) != 1 || since[0].Value != 21.5 {
		t.Errorf("List(since, limit 1) = %+v", since)
	}
}

func TestSQLiteStore_AppendUnknownDevice(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	err := store.Append(ctx, &Reading{DeviceID: "ghost", Value: 1})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("Append() error = %v, want ErrDeviceNotFound", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("readings count = %d, want 0", n)
	}
}

func TestSQLiteStore_AppendRequiresDevice(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Append(context.Background(), &Reading{Value: 1}); !errors.Is(err, ErrInvalidReading) {
		t.Errorf("Append() error = %v, want ErrInvalidReading", err)
	}
}

func TestSQLiteStore_Latest(t *testing.T) {
	store, db := newTestStore(t)
	insertDevice(t, db, "temp_1")
	ctx := context.Background()

	got, err := store.Latest(ctx, "temp_1")
	if err != nil || got != nil {
		t.Fatalf("Latest(empty) = %v, %v; want nil, nil", got, err)
	}

	now := time.Now()
	store.Append(ctx, &Reading{DeviceID: "temp_1", Value: 1, Timestamp: now.Add(-time.Hour)}) //nolint:errcheck // Test setup
	store.Append(ctx, &Reading{DeviceID: "temp_1", Value: 2, Timestamp: now})                 //nolint:errcheck // Test setup

	got, err = store.Latest(ctx, "temp_1")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got == nil || got.Value != 2 {
		t.Errorf("Latest() = %+v, want value 2", got)
	}
}

func TestSQLiteStore_PurgeOlderThan(t *testing.T) {
	store, db := newTestStore(t)
	insertDevice(t, db, "temp_1")
	ctx := context.Background()

	now := time.Now()
	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		if err := store.Append(ctx, &Reading{DeviceID: "temp_1", Value: 1, Timestamp: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.PurgeOlderThan(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeOlderThan() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PurgeOlderThan() = %d, want 2", n)
	}

	left, _ := store.List(ctx, "temp_1", Query{}) //nolint:errcheck // Checked by length
	if len(left) != 1 {
		t.Errorf("remaining readings = %d, want 1", len(left))
	}
}

func TestSQLiteStore_DeviceDeleteCascades(t *testing.T) {
	store, db := newTestStore(t)
	insertDevice(t, db, "temp_1")
	ctx := context.Background()

	if err := store.Append(ctx, &Reading{DeviceID: "temp_1", Value: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DELETE FROM devices WHERE id = ?`, "temp_1"); err != nil {
		t.Fatal(err)
	}

	got, err := store.List(ctx, "temp_1", Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("readings after device delete = %d, want 0", len(got))
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := (Query{Limit: tt.limit}).limit(); got != tt.want {
			t.Errorf("Query{Limit: %d}.limit() = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
