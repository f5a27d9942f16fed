package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository for registry tests.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	reads   int

	createErr error
	updateErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	sortDevices(devices)
	return devices, nil
}

func (m *MockRepository) FindByAddress(_ context.Context, floor int, location, deviceType string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	for _, d := range m.devices {
		if d.IsActive && d.Floor == floor && d.Location == location && d.Type == deviceType {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) FindByLegacyAddress(_ context.Context, location, deviceType string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	var best *Device
	for _, d := range m.devices {
		if d.IsActive && d.Location == location && d.Type == deviceType && (best == nil || d.Floor < best.Floor) {
			best = d
		}
	}
	if best == nil {
		return nil, ErrDeviceNotFound
	}
	return best.DeepCopy(), nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, id string, u Update) (*Device, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	work := d.DeepCopy()
	u.Apply(work)
	m.devices[id] = work
	return work.DeepCopy(), nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) MarkSeen(_ context.Context, id string, status Status, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Status = status
	d.LastSeen = &seen
	return nil
}

func (m *MockRepository) Mutate(_ context.Context, id string, fn func(*Device) error) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	work := d.DeepCopy()
	if err := fn(work); err != nil {
		return nil, err
	}
	m.devices[id] = work
	return work.DeepCopy(), nil
}

func newTestRegistry(t *testing.T, devices ...*Device) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	for _, d := range devices {
		repo.devices[d.ID] = d.DeepCopy()
	}
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg, repo
}

func TestRegistry_GetDeviceReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("d1", TypeLight, "hall", 1))
	ctx := context.Background()

	got, err := reg.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	got.Name = "mutated"

	again, _ := reg.GetDevice(ctx, "d1")
	if again.Name == "mutated" {
		t.Error("GetDevice() returned a shared pointer into the cache")
	}

	if _, err := reg.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v", err)
	}
}

func TestRegistry_GetDeviceBeforeRefresh(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["d1"] = testDevice("d1", TypeLight, "hall", 1)
	reg := NewRegistry(repo)

	if _, err := reg.GetDevice(context.Background(), "d1"); err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if repo.reads != 1 {
		t.Errorf("repository reads = %d, want 1", repo.reads)
	}
}

func TestRegistry_ListDevicesFilter(t *testing.T) {
	room := "room-1"
	inRoom := testDevice("c", TypeTemperature, "kitchen", 2)
	inRoom.RoomID = &room
	reg, _ := newTestRegistry(t,
		testDevice("a", TypeTemperature, "hall", 1),
		testDevice("b", TypeHumidity, "hall", 1),
		inRoom,
	)
	ctx := context.Background()
	two := 2

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"b", "a", "c"}},
		{"by type", Filter{Type: TypeTemperature}, []string{"a", "c"}},
		{"by location", Filter{Location: "hall"}, []string{"b", "a"}},
		{"by room", Filter{RoomID: room}, []string{"c"}},
		{"by floor", Filter{Floor: &two}, []string{"c"}},
		{"by status", Filter{Status: StatusOnline}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.ListDevices(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListDevices() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListDevices() returned %d devices, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("ListDevices()[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestRegistry_FindByAddressUsesCache(t *testing.T) {
	reg, repo := newTestRegistry(t,
		testDevice("temp_f2", TypeTemperature, "kitchen", 2),
		testDevice("temp_f1", TypeTemperature, "kitchen", 1),
	)
	ctx := context.Background()
	readsAfterRefresh := repo.reads

	got, err := reg.FindByAddress(ctx, 2, "kitchen", TypeTemperature)
	if err != nil || got.ID != "temp_f2" {
		t.Fatalf("FindByAddress() = %v, %v", got, err)
	}
	got, err = reg.FindByLegacyAddress(ctx, "kitchen", TypeTemperature)
	if err != nil || got.ID != "temp_f1" {
		t.Fatalf("FindByLegacyAddress() = %v, %v", got, err)
	}
	if _, err := reg.FindByAddress(ctx, 9, "kitchen", TypeTemperature); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("FindByAddress(missing) error = %v", err)
	}
	if repo.reads != readsAfterRefresh {
		t.Errorf("address lookups hit the repository %d times", repo.reads-readsAfterRefresh)
	}
}

func TestRegistry_CreateDevice(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	d := &Device{ID: "d1", Name: "Porch Light", Type: TypeLight, Floor: 0, Location: "porch", IsActive: true}
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.Status != StatusOffline {
		t.Errorf("Status = %s, want offline default", d.Status)
	}
	if reg.DeviceCount() != 1 {
		t.Errorf("DeviceCount() = %d, want 1", reg.DeviceCount())
	}

	bad := &Device{ID: "bad/id", Name: "x", Type: TypeLight, Location: "porch"}
	if err := reg.CreateDevice(ctx, bad); !errors.Is(err, ErrInvalidID) {
		t.Errorf("CreateDevice(bad id) error = %v, want ErrInvalidID", err)
	}
	if err := reg.CreateDevice(ctx, d); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("CreateDevice(duplicate) error = %v", err)
	}
}

func TestRegistry_UpdateDevice(t *testing.T) {
	reg, repo := newTestRegistry(t, testDevice("d1", TypeLight, "hall", 1))
	ctx := context.Background()

	name := "Landing Light"
	room := "room-9"
	got, err := reg.UpdateDevice(ctx, "d1", Update{Name: &name, RoomID: &room})
	if err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}
	if got.Name != name || got.RoomID == nil || *got.RoomID != room {
		t.Errorf("UpdateDevice() = %+v", got)
	}
	if repo.devices["d1"].Name != name {
		t.Error("UpdateDevice() did not persist")
	}

	empty := ""
	got, err = reg.UpdateDevice(ctx, "d1", Update{RoomID: &empty})
	if err != nil || got.RoomID != nil {
		t.Errorf("UpdateDevice(clear room) = %+v, %v", got, err)
	}

	bad := Status("exploded")
	if _, err := reg.UpdateDevice(ctx, "d1", Update{Status: &bad}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("UpdateDevice(bad status) error = %v", err)
	}

	repo.updateErr = errors.New("disk full")
	if _, err := reg.UpdateDevice(ctx, "d1", Update{Name: &name}); err == nil {
		t.Error("UpdateDevice() should surface repository errors")
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("d1", TypeLight, "hall", 1))
	ctx := context.Background()

	if err := reg.DeleteDevice(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := reg.GetDevice(ctx, "d1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v", err)
	}
}

func TestRegistry_MarkSeen(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("d1", TypeTemperature, "hall", 1))
	ctx := context.Background()

	seen := time.Now()
	if err := reg.MarkSeen(ctx, "d1", StatusOnline, seen); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	got, _ := reg.GetDevice(ctx, "d1")
	if got.Status != StatusOnline || got.LastSeen == nil {
		t.Errorf("cache not updated: %+v", got)
	}

	if err := reg.MarkSeen(ctx, "d1", Status("bogus"), seen); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("MarkSeen(bogus) error = %v", err)
	}
}

func TestRegistry_MutateDevice(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("d1", TypeDimmer, "hall", 1))
	ctx := context.Background()

	got, err := reg.MutateDevice(ctx, "d1", func(d *Device) error {
		v := 75.0
		d.Value, d.State, d.Status = &v, true, StatusOnline
		return nil
	})
	if err != nil {
		t.Fatalf("MutateDevice() error = %v", err)
	}
	if !got.State || *got.Value != 75 {
		t.Errorf("MutateDevice() = %+v", got)
	}

	cached, _ := reg.GetDevice(ctx, "d1")
	if !cached.State || cached.Value == nil || *cached.Value != 75 || cached.Status != StatusOnline {
		t.Errorf("cache not updated: %+v", cached)
	}
}

func TestRegistry_GetStats(t *testing.T) {
	online := testDevice("b", TypeTemperature, "hall", 1)
	online.Status = StatusOnline
	reg, _ := newTestRegistry(t, testDevice("a", TypeTemperature, "hall", 1), online, testDevice("c", TypeLight, "hall", 1))

	stats := reg.GetStats()
	if stats.TotalDevices != 3 {
		t.Errorf("TotalDevices = %d", stats.TotalDevices)
	}
	if stats.ByStatus[StatusOnline] != 1 || stats.ByStatus[StatusOffline] != 2 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if stats.ByType[TypeTemperature] != 2 || stats.ByType[TypeLight] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
}

func TestRegistry_SeedSamples(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	n, err := reg.SeedSamples(ctx)
	if err != nil {
		t.Fatalf("SeedSamples() error = %v", err)
	}
	if n != len(SampleDevices()) || reg.DeviceCount() != n {
		t.Errorf("SeedSamples() = %d, count = %d", n, reg.DeviceCount())
	}

	n, err = reg.SeedSamples(ctx)
	if err != nil || n != 0 {
		t.Errorf("SeedSamples(again) = %d, %v; want 0, nil", n, err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("d1", TypeTemperature, "hall", 1))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = reg.MarkSeen(ctx, "d1", StatusOnline, time.Now())
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.FindByAddress(ctx, 1, "hall", TypeTemperature)
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.ListDevices(ctx, Filter{})
		}()
	}
	wg.Wait()
}
