package access

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/home"
)

type fakeHomes struct {
	homes    map[string]*home.Home
	floors   map[string]*home.Floor
	rooms    map[string]*home.Room
	grants   map[string]*home.Grant // key homeID+"/"+userID
	grantErr error
}

func (f *fakeHomes) GetHome(_ context.Context, id string) (*home.Home, error) {
	if h, ok := f.homes[id]; ok {
		return h, nil
	}
	return nil, home.ErrHomeNotFound
}

func (f *fakeHomes) GetFloor(_ context.Context, id string) (*home.Floor, error) {
	if fl, ok := f.floors[id]; ok {
		return fl, nil
	}
	return nil, home.ErrFloorNotFound
}

func (f *fakeHomes) GetRoom(_ context.Context, id string) (*home.Room, error) {
	if r, ok := f.rooms[id]; ok {
		return r, nil
	}
	return nil, home.ErrRoomNotFound
}

func (f *fakeHomes) GetGrant(_ context.Context, homeID, userID string) (*home.Grant, error) {
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	if g, ok := f.grants[homeID+"/"+userID]; ok {
		return g, nil
	}
	return nil, home.ErrGrantNotFound
}

func newFixture() *fakeHomes {
	return &fakeHomes{
		homes:  map[string]*home.Home{"h1": {ID: "h1", OwnerID: "owner"}},
		floors: map[string]*home.Floor{"f1": {ID: "f1", HomeID: "h1", Number: 1}, "orphan-floor": {ID: "orphan-floor", HomeID: "gone"}},
		rooms: map[string]*home.Room{
			"r1":          {ID: "r1", FloorID: "f1"},
			"orphan-room": {ID: "orphan-room", FloorID: "orphan-floor"},
		},
		grants: map[string]*home.Grant{
			"h1/guest":   {HomeID: "h1", UserID: "guest", Level: home.LevelGuest},
			"h1/manager": {HomeID: "h1", UserID: "manager", Level: home.LevelAdmin},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestAllowed(t *testing.T) {
	grant := &home.Grant{HomeID: "h1", UserID: "u2", Level: home.LevelGuest}
	tests := []struct {
		name    string
		subject auth.Subject
		owner   string
		grant   *home.Grant
		want    bool
	}{
		{"admin without grant", auth.Subject{UserID: "a", IsAdmin: true}, "owner", nil, true},
		{"owner", auth.Subject{UserID: "owner"}, "owner", nil, true},
		{"guest grant", auth.Subject{UserID: "u2"}, "owner", grant, true},
		{"grant for someone else", auth.Subject{UserID: "u3"}, "owner", grant, false},
		{"no grant", auth.Subject{UserID: "u3"}, "owner", nil, false},
		{"anonymous vs empty owner", auth.Subject{}, "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.subject, tt.owner, tt.grant); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasLevel(t *testing.T) {
	g := &home.Grant{Level: home.LevelUser}
	if !HasLevel(g, home.LevelUser, home.LevelGuest) {
		t.Error("HasLevel() should match user")
	}
	if HasLevel(g, ManageLevels...) {
		t.Error("user grant should not manage")
	}
	if HasLevel(nil, home.LevelOwner) {
		t.Error("nil grant has no level")
	}
}

func TestCanAccessDevice(t *testing.T) {
	c := NewChecker(newFixture())
	ctx := context.Background()

	inRoom := &device.Device{ID: "d1", RoomID: strPtr("r1")}
	noRoom := &device.Device{ID: "d2"}
	brokenChain := &device.Device{ID: "d3", RoomID: strPtr("orphan-room")}
	missingRoom := &device.Device{ID: "d4", RoomID: strPtr("ghost")}

	tests := []struct {
		name    string
		subject auth.Subject
		dev     *device.Device
		want    bool
	}{
		{"admin any device", auth.Subject{UserID: "a", IsAdmin: true}, noRoom, true},
		{"owner", auth.Subject{UserID: "owner"}, inRoom, true},
		{"guest grant", auth.Subject{UserID: "guest"}, inRoom, true},
		{"stranger", auth.Subject{UserID: "stranger"}, inRoom, false},
		{"anonymous", auth.Subject{}, inRoom, false},
		{"owner but no room", auth.Subject{UserID: "owner"}, noRoom, false},
		{"broken chain", auth.Subject{UserID: "owner"}, brokenChain, false},
		{"missing room", auth.Subject{UserID: "owner"}, missingRoom, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CanAccessDevice(ctx, tt.subject, tt.dev)
			if err != nil {
				t.Fatalf("CanAccessDevice() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAccessDevice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireDevice(t *testing.T) {
	fx := newFixture()
	c := NewChecker(fx)
	ctx := context.Background()
	dev := &device.Device{ID: "d1", RoomID: strPtr("r1")}

	if err := c.RequireDevice(ctx, auth.Subject{UserID: "stranger"}, dev); !errors.Is(err, ErrForbidden) {
		t.Errorf("RequireDevice(stranger) error = %v, want ErrForbidden", err)
	}
	if err := c.RequireDevice(ctx, auth.Subject{UserID: "guest"}, dev); err != nil {
		t.Errorf("RequireDevice(guest) error = %v", err)
	}

	fx.grantErr = errors.New("database is locked")
	err := c.RequireDevice(ctx, auth.Subject{UserID: "stranger"}, dev)
	if err == nil || errors.Is(err, ErrForbidden) {
		t.Errorf("storage failures must surface, got %v", err)
	}
}

type fakeDevices map[string]*device.Device

func (f fakeDevices) GetDevice(_ context.Context, id string) (*device.Device, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

func TestObserveFilter(t *testing.T) {
	fx := newFixture()
	allow := NewChecker(fx).ObserveFilter(fakeDevices{
		"d1": {ID: "d1", RoomID: strPtr("r1")},
		"d2": {ID: "d2"},
	})
	ctx := context.Background()

	tests := []struct {
		name     string
		subject  auth.Subject
		deviceID string
		want     bool
	}{
		{"owner", auth.Subject{UserID: "owner"}, "d1", true},
		{"guest grant", auth.Subject{UserID: "guest"}, "d1", true},
		{"stranger", auth.Subject{UserID: "stranger"}, "d1", false},
		{"owner unassigned device", auth.Subject{UserID: "owner"}, "d2", false},
		{"admin unassigned device", auth.Subject{UserID: "a", IsAdmin: true}, "d2", true},
		{"unknown device", auth.Subject{UserID: "owner"}, "ghost", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allow(ctx, tt.subject, tt.deviceID); got != tt.want {
				t.Errorf("filter(%s, %s) = %v, want %v", tt.subject.UserID, tt.deviceID, got, tt.want)
			}
		})
	}

	fx.grantErr = errors.New("database is locked")
	if allow(ctx, auth.Subject{UserID: "guest"}, "d1") {
		t.Error("storage failures must deny")
	}
}

func TestCanAccessAndManageHome(t *testing.T) {
	c := NewChecker(newFixture())
	ctx := context.Background()

	tests := []struct {
		user       string
		admin      bool
		wantAccess bool
		wantManage bool
	}{
		{"owner", false, true, true},
		{"manager", false, true, true},
		{"guest", false, true, false},
		{"stranger", false, false, false},
		{"root", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			s := auth.Subject{UserID: tt.user, IsAdmin: tt.admin}
			access, err := c.CanAccessHome(ctx, s, "h1")
			if err != nil || access != tt.wantAccess {
				t.Errorf("CanAccessHome() = %v, %v; want %v", access, err, tt.wantAccess)
			}
			manage, err := c.CanManageHome(ctx, s, "h1")
			if err != nil || manage != tt.wantManage {
				t.Errorf("CanManageHome() = %v, %v; want %v", manage, err, tt.wantManage)
			}
		})
	}

	if _, err := c.CanAccessHome(ctx, auth.Subject{UserID: "owner"}, "nope"); !errors.Is(err, home.ErrHomeNotFound) {
		t.Errorf("CanAccessHome(missing) error = %v", err)
	}
}
