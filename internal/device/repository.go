package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
)

// Repository defines device persistence operations.
type Repository interface {
	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by floor, location and type.
	List(ctx context.Context) ([]Device, error)

	// FindByAddress retrieves the active device at (floor, location, type).
	FindByAddress(ctx context.Context, floor int, location, deviceType string) (*Device, error)

	// FindByLegacyAddress retrieves the active device at (location, type) on
	// the lowest floor that has one.
	FindByLegacyAddress(ctx context.Context, location, deviceType string) (*Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the ID is taken.
	Create(ctx context.Context, device *Device) error

	// Update applies u to the stored device in one transaction and returns
	// the row as written. Status is only written when u sets it.
	Update(ctx context.Context, id string, u Update) (*Device, error)

	// Delete removes a device and, by cascade, its readings and actions.
	Delete(ctx context.Context, id string) error

	// MarkSeen sets status and last_seen only.
	MarkSeen(ctx context.Context, id string, status Status, seen time.Time) error

	// Mutate reads the device, applies fn and writes back the local state,
	// value, status and last_seen in one transaction.
	Mutate(ctx context.Context, id string, fn func(d *Device) error) (*Device, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, name, type, room_id, floor, location, status, last_seen,
		is_active, state, value, created_at, updated_at
	FROM devices`

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY floor, location, type, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// FindByAddress retrieves the active device at (floor, location, type).
// When several rows share an address the lowest ID wins.
func (r *SQLiteRepository) FindByAddress(ctx context.Context, floor int, location, deviceType string) (*Device, error) {
	query := selectColumns + `
		WHERE floor = ? AND location = ? AND type = ? AND is_active = 1
		ORDER BY id
		LIMIT 1`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, floor, location, deviceType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by address: %w", err)
	}
	return d, nil
}

// FindByLegacyAddress retrieves the active device at (location, type).
func (r *SQLiteRepository) FindByLegacyAddress(ctx context.Context, location, deviceType string) (*Device, error) {
	query := selectColumns + `
		WHERE location = ? AND type = ? AND is_active = 1
		ORDER BY floor, id
		LIMIT 1`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, location, deviceType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by legacy address: %w", err)
	}
	return d, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, name, type, room_id, floor, location, status, last_seen,
			is_active, state, value, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Type,
		database.NullString(device.RoomID),
		device.Floor,
		device.Location,
		string(device.Status),
		database.NullTime(device.LastSeen),
		boolToInt(device.IsActive),
		boolToInt(device.State),
		nullableFloat(device.Value),
		database.FormatTime(device.CreatedAt),
		database.FormatTime(device.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueConstraintError(err):
			return ErrDeviceExists
		case isForeignKeyError(err):
			return ErrRoomNotFound
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update applies u to the current row inside a transaction. Local state,
// value and last_seen are owned by Mutate and MarkSeen and are not touched,
// and status is left alone unless u sets it.
func (r *SQLiteRepository) Update(ctx context.Context, id string, u Update) (*Device, error) {
	var out *Device
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := scanDevice(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDeviceNotFound
			}
			return fmt.Errorf("querying device for update: %w", err)
		}

		u.Apply(d)
		d.UpdatedAt = time.Now().UTC()

		var status sql.NullString
		if u.Status != nil {
			status = sql.NullString{String: string(*u.Status), Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE devices SET
				name = ?, type = ?, room_id = ?, floor = ?, location = ?,
				status = COALESCE(?, status), is_active = ?, updated_at = ?
			WHERE id = ?`,
			d.Name,
			d.Type,
			database.NullString(d.RoomID),
			d.Floor,
			d.Location,
			status,
			boolToInt(d.IsActive),
			database.FormatTime(d.UpdatedAt),
			id,
		)
		if err != nil {
			if isForeignKeyError(err) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("updating device: %w", err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

// MarkSeen updates status and last_seen.
func (r *SQLiteRepository) MarkSeen(ctx context.Context, id string, status Status, seen time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		database.FormatTime(seen),
		database.FormatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRow(result)
}

// Mutate applies fn to the current row inside a transaction and persists
// state, value, status and last_seen. If fn returns an error nothing is written.
func (r *SQLiteRepository) Mutate(ctx context.Context, id string, fn func(d *Device) error) (*Device, error) {
	var out *Device
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		d, err := scanDevice(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDeviceNotFound
			}
			return fmt.Errorf("querying device for update: %w", err)
		}

		if err := fn(d); err != nil {
			return err
		}
		if err := ValidateStatus(d.Status); err != nil {
			return err
		}
		d.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx, `
			UPDATE devices
			SET state = ?, value = ?, status = ?, last_seen = ?, updated_at = ?
			WHERE id = ?`,
			boolToInt(d.State),
			nullableFloat(d.Value),
			string(d.Status),
			database.NullTime(d.LastSeen),
			database.FormatTime(d.UpdatedAt),
			id,
		)
		if err != nil {
			return fmt.Errorf("writing device state: %w", err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var roomID, lastSeen sql.NullString
	var value sql.NullFloat64
	var status, createdAt, updatedAt string
	var isActive, state int

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Type,
		&roomID,
		&d.Floor,
		&d.Location,
		&status,
		&lastSeen,
		&isActive,
		&state,
		&value,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.RoomID = database.ScanNullString(roomID)
	d.Status = Status(status)
	d.LastSeen = database.ScanNullTime(lastSeen)
	d.IsActive = isActive != 0
	d.State = state != 0
	if value.Valid {
		v := value.Float64
		d.Value = &v
	}

	if d.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func isForeignKeyError(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
