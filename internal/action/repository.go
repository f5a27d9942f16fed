package action

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
)

// Repository persists actions.
type Repository interface {
	// Create inserts a pending action and sets its ID and CreatedAt.
	Create(ctx context.Context, a *Action) error

	// Resolve moves a pending action to success or failed. Resolving an
	// action that is no longer pending returns ErrAlreadyResolved.
	Resolve(ctx context.Context, id int64, status Status, message string) error

	Get(ctx context.Context, id int64) (*Action, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Action, error)
	CountPending(ctx context.Context) (int, error)
}

const defaultListLimit = 50

const actionColumns = `id, device_id, action, value, status, user_id, message, created_at, resolved_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed action repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Create(ctx context.Context, a *Action) error {
	if a.DeviceID == "" || a.Action == "" {
		return ErrInvalidAction
	}
	a.Status = StatusPending
	a.CreatedAt = r.now().UTC()
	a.ResolvedAt = nil

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO actions (device_id, action, value, status, user_id, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.DeviceID, a.Action, database.NullString(a.Value), string(a.Status),
		database.NullString(a.UserID), a.Message, database.FormatTime(a.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("inserting action: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("action insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (r *SQLiteRepository) Resolve(ctx context.Context, id int64, status Status, message string) error {
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, message = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(status), message, database.FormatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("resolving action: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*Action, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ListByDevice returns the newest actions for a device first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	actions := []Action{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending actions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(s rowScanner) (*Action, error) {
	var (
		a          Action
		value      sql.NullString
		status     string
		userID     sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)
	if err := s.Scan(&a.ID, &a.DeviceID, &a.Action, &value, &status, &userID, &a.Message, &createdAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning action: %w", err)
	}
	a.Status = Status(status)
	a.Value = database.ScanNullString(value)
	a.UserID = database.ScanNullString(userID)

	ts, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = ts

	a.ResolvedAt = database.ScanNullTime(resolvedAt)
	return &a, nil
}
