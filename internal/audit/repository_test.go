package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database/databasetest"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	return NewSQLiteRepository(databasetest.Open(t).DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []*Entry{
		{Action: ActionCreate, EntityType: EntityDevice, EntityID: "d1", UserID: "u1", CreatedAt: base},
		{Action: ActionUpdate, EntityType: EntityDevice, EntityID: "d1", UserID: "u2", CreatedAt: base.Add(time.Minute),
			Details: map[string]any{"fields": []any{"name"}}},
		{Action: ActionCreate, EntityType: EntityHome, EntityID: "h1", UserID: "u1", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" || e.Source != "api" {
			t.Errorf("Create() did not fill defaults: %+v", e)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		total  int
		first  string
	}{
		{"all", Filter{}, 3, "h1"},
		{"by entity type", Filter{EntityType: EntityDevice}, 2, "d1"},
		{"by action", Filter{Action: ActionCreate}, 2, "h1"},
		{"by user", Filter{UserID: "u2"}, 1, "d1"},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 1, "h1"},
		{"none", Filter{EntityID: "zzz"}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.total || len(page.Entries) != tt.total {
				t.Fatalf("List() total = %d, entries = %d, want %d", page.Total, len(page.Entries), tt.total)
			}
			if tt.total > 0 && page.Entries[0].EntityID != tt.first {
				t.Errorf("first entity = %q, want %q", page.Entries[0].EntityID, tt.first)
			}
		})
	}

	page, err := repo.List(ctx, Filter{Action: ActionUpdate})
	if err != nil {
		t.Fatal(err)
	}
	if page.Entries[0].Details["fields"] == nil {
		t.Errorf("details not round-tripped: %+v", page.Entries[0].Details)
	}
}

func TestSQLiteRepository_ListPagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &Entry{Action: ActionLogin, EntityType: EntityUser}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || len(page.Entries) != 1 || page.Limit != 2 || page.Offset != 4 {
		t.Errorf("List(limit 2, offset 4) = total %d, len %d", page.Total, len(page.Entries))
	}

	page, err = repo.List(ctx, Filter{Limit: 1000, Offset: -1})
	if err != nil {
		t.Fatal(err)
	}
	if page.Limit != maxLimit || page.Offset != 0 {
		t.Errorf("clamped limit/offset = %d/%d", page.Limit, page.Offset)
	}
}

func TestSQLiteRepository_CreateInvalid(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Create(context.Background(), &Entry{Action: ActionCreate}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Create() error = %v, want ErrInvalidEntry", err)
	}
}

func TestRecorder_WritesOnClose(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo, nil)
	rec.Start()

	rec.Record(ActionDelete, EntityDevice, "d9", "u1", nil)
	rec.Record(ActionGrant, EntityAccess, "h1", "u1", map[string]any{"level": "guest"})
	rec.Close()

	page, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Errorf("entries after Close() = %d, want 2", page.Total)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(ActionCreate, EntityHome, "h1", "", nil)
	rec.Close()
}
