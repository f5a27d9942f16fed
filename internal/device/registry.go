package device

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry wraps a Repository with an in-memory cache keyed by device ID.
//
// The cache is populated by RefreshCache and kept in sync by every write
// that goes through the Registry. Until it is populated, reads fall through
// to the repository. All public methods are safe for concurrent use.
//
// Writes are serialised by writeMu and the cache always takes the row the
// repository returned, so a write can never put an older copy back.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	loaded  bool
	cacheMu sync.RWMutex
	writeMu sync.Mutex
	logger  Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID. The result is a copy.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	loaded := r.loaded
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	if loaded {
		return nil, ErrDeviceNotFound
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d, nil
}

// ListDevices returns the devices matching f, ordered by floor, location,
// type and ID.
func (r *Registry) ListDevices(ctx context.Context, f Filter) ([]Device, error) {
	r.cacheMu.RLock()
	if r.loaded {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			if f.Matches(d) {
				devices = append(devices, *d.DeepCopy())
			}
		}
		r.cacheMu.RUnlock()
		sortDevices(devices)
		return devices, nil
	}
	r.cacheMu.RUnlock()

	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	devices := all[:0]
	for i := range all {
		if f.Matches(&all[i]) {
			devices = append(devices, all[i])
		}
	}
	return devices, nil
}

// FindByAddress resolves a current-scheme bus address to an active device.
func (r *Registry) FindByAddress(ctx context.Context, floor int, location, deviceType string) (*Device, error) {
	if d, loaded := r.findCached(func(d *Device) bool {
		return d.Floor == floor && d.Location == location && d.Type == deviceType
	}); loaded {
		if d == nil {
			return nil, ErrDeviceNotFound
		}
		return d, nil
	}
	return r.repo.FindByAddress(ctx, floor, location, deviceType)
}

// FindByLegacyAddress resolves a legacy (location, type) address to an
// active device, preferring the lowest floor.
func (r *Registry) FindByLegacyAddress(ctx context.Context, location, deviceType string) (*Device, error) {
	if d, loaded := r.findCached(func(d *Device) bool {
		return d.Location == location && d.Type == deviceType
	}); loaded {
		if d == nil {
			return nil, ErrDeviceNotFound
		}
		return d, nil
	}
	return r.repo.FindByLegacyAddress(ctx, location, deviceType)
}

// findCached returns a copy of the first active cached device matching
// match in (floor, id) order. The second result is false when the cache is
// not loaded and the caller must ask the repository.
func (r *Registry) findCached(match func(d *Device) bool) (*Device, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if !r.loaded {
		return nil, false
	}

	var best *Device
	for _, d := range r.cache {
		if !d.IsActive || !match(d) {
			continue
		}
		if best == nil || d.Floor < best.Floor || (d.Floor == best.Floor && d.ID < best.ID) {
			best = d
		}
	}
	return best.DeepCopy(), true
}

// CreateDevice validates and persists a new device. An empty status
// defaults to offline.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.Status == "" {
		device.Status = StatusOffline
	}
	if err := ValidateDevice(device); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.store(device)
	r.logger.Info("device created", "id", device.ID, "name", device.Name)
	return nil
}

// UpdateDevice applies an allow-listed update and returns the new device.
// The patch is applied to the stored row, not to a cached copy.
func (r *Registry) UpdateDevice(ctx context.Context, id string, u Update) (*Device, error) {
	if err := ValidateUpdate(u); err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	d, err := r.repo.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}

	r.store(d)
	r.logger.Info("device updated", "id", id)
	return d.DeepCopy(), nil
}

// DeleteDevice removes a device. Its readings and actions go with it.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// MarkSeen records that the device reported in with the given status.
func (r *Registry) MarkSeen(ctx context.Context, id string, status Status, seen time.Time) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.MarkSeen(ctx, id, status, seen); err != nil {
		return err
	}

	seen = seen.UTC()
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Status = status
		updated.LastSeen = &seen
		updated.UpdatedAt = time.Now().UTC()
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device seen", "id", id, "status", status)
	return nil
}

// MutateDevice applies fn to the stored device in a single transaction and
// returns the result.
func (r *Registry) MutateDevice(ctx context.Context, id string, fn func(d *Device) error) (*Device, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	d, err := r.repo.Mutate(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d.DeepCopy(), nil
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// GetStats returns counts by status and type.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByStatus:     make(map[Status]int),
		ByType:       make(map[string]int),
	}
	for _, d := range r.cache {
		stats.ByStatus[d.Status]++
		stats.ByType[d.Type]++
	}
	return stats
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

func sortDevices(devices []Device) {
	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Or(
			cmp.Compare(a.Floor, b.Floor),
			cmp.Compare(a.Location, b.Location),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
