package action

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/database/databasetest"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()
	db := databasetest.Open(t).DB
	now := database.FormatTime(time.Now())
	_, err := db.Exec(`INSERT INTO devices (id, name, type, floor, location, status, is_active, created_at, updated_at)
		VALUES ('dimmer_1', 'Dimmer', 'dimmer', 1, 'living_room', 'offline', 1, ?, ?)`, now, now)
	if err != nil {
		t.Fatalf("inserting device: %v", err)
	}
	return NewSQLiteRepository(db), db
}

func TestSQLiteRepository_CreateIsPending(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a := &Action{DeviceID: "dimmer_1", Action: "set", Value: FormatValue(float64(75)), Status: StatusSuccess}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == 0 || a.Status != StatusPending || a.CreatedAt.IsZero() {
		t.Errorf("Create() = %+v", a)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusPending || got.Value == nil || *got.Value != "75" || got.ResolvedAt != nil || got.UserID != nil {
		t.Errorf("Get() = %+v", got)
	}
}

func TestSQLiteRepository_CreateValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &Action{DeviceID: "dimmer_1"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Create(no action) error = %v, want ErrInvalidAction", err)
	}
	if err := repo.Create(ctx, &Action{DeviceID: "ghost", Action: "on"}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Create(unknown device) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ResolveOnce(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a := &Action{DeviceID: "dimmer_1", Action: "on"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	if err := repo.Resolve(ctx, a.ID, StatusFailed, "publish timeout"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := repo.Resolve(ctx, a.ID, StatusSuccess, ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Resolve() error = %v, want ErrAlreadyResolved", err)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Message != "publish timeout" || got.ResolvedAt == nil {
		t.Errorf("Get() after resolve = %+v", got)
	}
}

func TestSQLiteRepository_ResolveErrors(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Resolve(ctx, 999, StatusSuccess, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}

	a := &Action{DeviceID: "dimmer_1", Action: "on"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := repo.Resolve(ctx, a.ID, StatusPending, ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Resolve(pending) error = %v, want ErrInvalidStatus", err)
	}
}

func TestSQLiteRepository_ListByDeviceAndCountPending(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	repo.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	var ids []int64
	for _, name := range []string{"on", "off", "toggle"} {
		a := &Action{DeviceID: "dimmer_1", Action: name}
		if err := repo.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, a.ID)
	}
	if err := repo.Resolve(ctx, ids[0], StatusSuccess, ""); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListByDevice(ctx, "dimmer_1", 0)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(list) != 3 || list[0].Action != "toggle" || list[2].Action != "on" {
		t.Errorf("ListByDevice() = %+v", list)
	}

	n, err := repo.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountPending() = %d, want 2", n)
	}
}

func TestSQLiteRepository_UserReference(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	now := database.FormatTime(time.Now())
	if _, err := db.Exec(`INSERT INTO users (id, username, email, password_hash, is_admin, is_active, created_at, updated_at)
		VALUES ('u1', 'alice', 'a@example.com', 'x', 0, 1, ?, ?)`, now, now); err != nil {
		t.Fatalf("inserting user: %v", err)
	}

	user := "u1"
	a := &Action{DeviceID: "dimmer_1", Action: "on", UserID: &user}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID == nil || *got.UserID != "u1" {
		t.Errorf("UserID = %v, want u1", got.UserID)
	}
}
