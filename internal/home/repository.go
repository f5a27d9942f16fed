package home

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
)

// Repository defines persistence for homes, floors, rooms and grants.
// Lookups return the package's not-found sentinels rather than nil results.
type Repository interface {
	CreateHome(ctx context.Context, h *Home) error
	GetHome(ctx context.Context, id string) (*Home, error)
	ListHomes(ctx context.Context) ([]Home, error)
	ListHomesForUser(ctx context.Context, userID string) ([]Home, error)
	DeleteHome(ctx context.Context, id string) error

	CreateFloor(ctx context.Context, f *Floor) error
	GetFloor(ctx context.Context, id string) (*Floor, error)
	ListFloors(ctx context.Context, homeID string) ([]Floor, error)

	CreateRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRooms(ctx context.Context, floorID string) ([]Room, error)

	SetGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, homeID, userID string) (*Grant, error)
	ListGrants(ctx context.Context, homeID string) ([]Grant, error)
	ListGrantsForUser(ctx context.Context, userID string) ([]Grant, error)
	DeleteGrant(ctx context.Context, homeID, userID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed home repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateHome inserts a home. ID and timestamps are filled in when empty.
func (r *SQLiteRepository) CreateHome(ctx context.Context, h *Home) error {
	if err := ValidateName(h.Name); err != nil {
		return err
	}
	if h.ID == "" {
		h.ID = newID()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now

	const query = `INSERT INTO homes (id, name, address, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.Name, h.Address, h.OwnerID, database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("inserting home %s: %w", h.ID, err)
	}
	return nil
}

// GetHome returns a home by ID.
func (r *SQLiteRepository) GetHome(ctx context.Context, id string) (*Home, error) {
	const query = `SELECT id, name, address, owner_id, created_at, updated_at
		FROM homes WHERE id = ?`
	h, err := scanHome(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHomeNotFound
		}
		return nil, fmt.Errorf("querying home: %w", err)
	}
	return h, nil
}

// ListHomes returns every home ordered by name.
func (r *SQLiteRepository) ListHomes(ctx context.Context) ([]Home, error) {
	const query = `SELECT id, name, address, owner_id, created_at, updated_at
		FROM homes ORDER BY name, id`
	return r.queryHomes(ctx, query)
}

// ListHomesForUser returns the homes a user owns or holds a grant on.
func (r *SQLiteRepository) ListHomesForUser(ctx context.Context, userID string) ([]Home, error) {
	const query = `SELECT id, name, address, owner_id, created_at, updated_at
		FROM homes
		WHERE owner_id = ?
		   OR id IN (SELECT home_id FROM home_access WHERE user_id = ?)
		ORDER BY name, id`
	return r.queryHomes(ctx, query, userID, userID)
}

// DeleteHome removes a home and everything beneath it. Devices in its rooms
// are kept but lose their room.
func (r *SQLiteRepository) DeleteHome(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM homes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting home: %w", err)
	}
	return requireRow(result, ErrHomeNotFound)
}

func (r *SQLiteRepository) queryHomes(ctx context.Context, query string, args ...any) ([]Home, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying homes: %w", err)
	}
	defer rows.Close()

	homes := []Home{}
	for rows.Next() {
		h, err := scanHome(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning home: %w", err)
		}
		homes = append(homes, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating homes: %w", err)
	}
	return homes, nil
}

// CreateFloor inserts a floor.
func (r *SQLiteRepository) CreateFloor(ctx context.Context, f *Floor) error {
	if err := ValidateName(f.Name); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO floors (id, home_id, name, number, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, f.ID, f.HomeID, f.Name, f.Number, database.FormatTime(f.CreatedAt))
	if err != nil {
		switch {
		case isForeignKeyError(err):
			return ErrHomeNotFound
		case isUniqueError(err):
			return ErrFloorExists
		}
		return fmt.Errorf("inserting floor %s: %w", f.ID, err)
	}
	return nil
}

// GetFloor returns a floor by ID.
func (r *SQLiteRepository) GetFloor(ctx context.Context, id string) (*Floor, error) {
	const query = `SELECT id, home_id, name, number, created_at FROM floors WHERE id = ?`
	f, err := scanFloor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFloorNotFound
		}
		return nil, fmt.Errorf("querying floor: %w", err)
	}
	return f, nil
}

// ListFloors returns the floors of a home ordered by number.
func (r *SQLiteRepository) ListFloors(ctx context.Context, homeID string) ([]Floor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, home_id, name, number, created_at FROM floors WHERE home_id = ? ORDER BY number`, homeID)
	if err != nil {
		return nil, fmt.Errorf("querying floors: %w", err)
	}
	defer rows.Close()

	floors := []Floor{}
	for rows.Next() {
		f, err := scanFloor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning floor: %w", err)
		}
		floors = append(floors, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating floors: %w", err)
	}
	return floors, nil
}

// CreateRoom inserts a room.
func (r *SQLiteRepository) CreateRoom(ctx context.Context, room *Room) error {
	if err := ValidateName(room.Name); err != nil {
		return err
	}
	if room.ID == "" {
		room.ID = newID()
	}
	room.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO rooms (id, floor_id, name, room_type, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		room.ID, room.FloorID, room.Name, room.RoomType, database.FormatTime(room.CreatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return ErrFloorNotFound
		}
		return fmt.Errorf("inserting room %s: %w", room.ID, err)
	}
	return nil
}

// GetRoom returns a room by ID.
func (r *SQLiteRepository) GetRoom(ctx context.Context, id string) (*Room, error) {
	const query = `SELECT id, floor_id, name, room_type, created_at FROM rooms WHERE id = ?`
	room, err := scanRoom(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return room, nil
}

// ListRooms returns the rooms on a floor ordered by name.
func (r *SQLiteRepository) ListRooms(ctx context.Context, floorID string) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, floor_id, name, room_type, created_at FROM rooms WHERE floor_id = ? ORDER BY name, id`, floorID)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return rooms, nil
}

// SetGrant creates or replaces the grant for (home, user).
func (r *SQLiteRepository) SetGrant(ctx context.Context, g *Grant) error {
	if err := ValidateLevel(g.Level); err != nil {
		return err
	}
	g.CreatedAt = time.Now().UTC()

	var grantedBy sql.NullString
	if g.GrantedBy != "" {
		grantedBy = sql.NullString{String: g.GrantedBy, Valid: true}
	}

	const query = `INSERT INTO home_access (home_id, user_id, level, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (home_id, user_id) DO UPDATE SET
			level = excluded.level,
			granted_by = excluded.granted_by`
	_, err := r.db.ExecContext(ctx, query,
		g.HomeID, g.UserID, string(g.Level), grantedBy, database.FormatTime(g.CreatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			if _, herr := r.GetHome(ctx, g.HomeID); errors.Is(herr, ErrHomeNotFound) {
				return ErrHomeNotFound
			}
			return ErrUserNotFound
		}
		return fmt.Errorf("setting access grant: %w", err)
	}
	return nil
}

// GetGrant returns the grant for (home, user).
func (r *SQLiteRepository) GetGrant(ctx context.Context, homeID, userID string) (*Grant, error) {
	const query = `SELECT home_id, user_id, level, granted_by, created_at
		FROM home_access WHERE home_id = ? AND user_id = ?`
	g, err := scanGrant(r.db.QueryRowContext(ctx, query, homeID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("querying access grant: %w", err)
	}
	return g, nil
}

// ListGrants returns every grant on a home.
func (r *SQLiteRepository) ListGrants(ctx context.Context, homeID string) ([]Grant, error) {
	return r.queryGrants(ctx, `SELECT home_id, user_id, level, granted_by, created_at
		FROM home_access WHERE home_id = ? ORDER BY user_id`, homeID)
}

// ListGrantsForUser returns every grant held by a user.
func (r *SQLiteRepository) ListGrantsForUser(ctx context.Context, userID string) ([]Grant, error) {
	return r.queryGrants(ctx, `SELECT home_id, user_id, level, granted_by, created_at
		FROM home_access WHERE user_id = ? ORDER BY home_id`, userID)
}

// DeleteGrant revokes a user's grant on a home.
func (r *SQLiteRepository) DeleteGrant(ctx context.Context, homeID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM home_access WHERE home_id = ? AND user_id = ?", homeID, userID)
	if err != nil {
		return fmt.Errorf("deleting access grant: %w", err)
	}
	return requireRow(result, ErrGrantNotFound)
}

func (r *SQLiteRepository) queryGrants(ctx context.Context, query string, args ...any) ([]Grant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access grants: %w", err)
	}
	defer rows.Close()

	grants := []Grant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access grant: %w", err)
		}
		grants = append(grants, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access grants: %w", err)
	}
	return grants, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHome(s rowScanner) (*Home, error) {
	var h Home
	var createdAt, updatedAt string
	if err := s.Scan(&h.ID, &h.Name, &h.Address, &h.OwnerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	h.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
	h.UpdatedAt, _ = database.ParseTime(updatedAt) //nolint:errcheck // format is controlled
	return &h, nil
}

func scanFloor(s rowScanner) (*Floor, error) {
	var f Floor
	var createdAt string
	if err := s.Scan(&f.ID, &f.HomeID, &f.Name, &f.Number, &createdAt); err != nil {
		return nil, err
	}
	f.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
	return &f, nil
}

func scanRoom(s rowScanner) (*Room, error) {
	var room Room
	var createdAt string
	if err := s.Scan(&room.ID, &room.FloorID, &room.Name, &room.RoomType, &createdAt); err != nil {
		return nil, err
	}
	room.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
	return &room, nil
}

func scanGrant(s rowScanner) (*Grant, error) {
	var g Grant
	var level, createdAt string
	var grantedBy sql.NullString
	if err := s.Scan(&g.HomeID, &g.UserID, &level, &grantedBy, &createdAt); err != nil {
		return nil, err
	}
	g.Level = Level(level)
	g.GrantedBy = grantedBy.String
	g.CreatedAt, _ = database.ParseTime(createdAt) //nolint:errcheck // format is controlled
	return &g, nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isForeignKeyError(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isUniqueError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
