package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
)

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 10000
)

var (
	// ErrDeviceNotFound is returned when appending a reading for a device
	// that does not exist.
	ErrDeviceNotFound = errors.New("telemetry: device not found")

	// ErrInvalidReading is returned for readings that cannot be stored.
	ErrInvalidReading = errors.New("telemetry: invalid reading")
)

// Reading is one immutable sensor measurement.
type Reading struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Query selects readings for one device, newest first.
// A zero Since means no lower bound; Limit is clamped to [1, MaxLimit].
type Query struct {
	Since time.Time
	Until time.Time
	Limit int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	}
	return q.Limit
}

// Store persists readings.
type Store interface {
	Append(ctx context.Context, r *Reading) error
	List(ctx context.Context, deviceID string, q Query) ([]Reading, error)
	Latest(ctx context.Context, deviceID string) (*Reading, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed reading store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Append inserts a reading and sets its ID. A zero Timestamp is set to now.
// The device must exist.
func (s *SQLiteStore) Append(ctx context.Context, r *Reading) error {
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidReading)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Timestamp = r.Timestamp.UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (device_id, value, unit, recorded_at) VALUES (?, ?, ?, ?)`,
		r.DeviceID, r.Value, r.Unit, database.FormatTime(r.Timestamp))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("inserting reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	r.ID = id
	return nil
}

// List returns readings for deviceID newest first.
func (s *SQLiteStore) List(ctx context.Context, deviceID string, q Query) ([]Reading, error) {
	query := `SELECT id, device_id, value, unit, recorded_at FROM readings WHERE device_id = ?`
	args := []any{deviceID}
	if !q.Since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, database.FormatTime(q.Since))
	}
	if !q.Until.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, database.FormatTime(q.Until))
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// Latest returns the newest reading for deviceID, or nil when there is none.
func (s *SQLiteStore) Latest(ctx context.Context, deviceID string) (*Reading, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, value, unit, recorded_at FROM readings
		 WHERE device_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, deviceID)
	r, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// PurgeOlderThan deletes readings recorded before cutoff.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM readings WHERE recorded_at < ?`, database.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(s rowScanner) (*Reading, error) {
	var r Reading
	var recordedAt string
	if err := s.Scan(&r.ID, &r.DeviceID, &r.Value, &r.Unit, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning reading: %w", err)
	}
	ts, err := database.ParseTime(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	r.Timestamp = ts
	return &r, nil
}
