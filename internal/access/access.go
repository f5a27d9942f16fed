// Package access decides whether a caller may see a home or a device.
//
// The rule: administrators see everything; anyone else sees a home they
// own or hold a grant on, and sees a device when its room belongs to such a
// home. The device → room → floor → home chain is resolved with explicit
// repository lookups. A device with no room belongs to no home, so only
// administrators can reach it.
//
// Grant levels are not consulted here. Write paths that need a level apply
// HasLevel on top.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/home"
)

// ErrForbidden is returned by Require* when the caller has no access.
var ErrForbidden = errors.New("access: forbidden")

// Homes is the subset of home.Repository the checker needs.
type Homes interface {
	GetHome(ctx context.Context, id string) (*home.Home, error)
	GetFloor(ctx context.Context, id string) (*home.Floor, error)
	GetRoom(ctx context.Context, id string) (*home.Room, error)
	GetGrant(ctx context.Context, homeID, userID string) (*home.Grant, error)
}

// Checker evaluates access against the home hierarchy.
type Checker struct {
	homes Homes
}

// NewChecker creates a checker backed by homes.
func NewChecker(homes Homes) *Checker {
	return &Checker{homes: homes}
}

// Allowed is the access decision: admins always, otherwise the owner or any
// holder of a grant. It performs no I/O.
func Allowed(subject auth.Subject, ownerID string, grant *home.Grant) bool {
	if subject.IsAdmin {
		return true
	}
	if subject.Anonymous() {
		return false
	}
	if ownerID == subject.UserID {
		return true
	}
	return grant != nil && grant.UserID == subject.UserID
}

// HasLevel reports whether grant carries one of levels.
func HasLevel(grant *home.Grant, levels ...home.Level) bool {
	if grant == nil {
		return false
	}
	for _, l := range levels {
		if grant.Level == l {
			return true
		}
	}
	return false
}

// ManageLevels are the grant levels allowed to change a home.
var ManageLevels = []home.Level{home.LevelOwner, home.LevelAdmin}

// CanAccessHome reports whether subject may see homeID.
// A missing home is reported as home.ErrHomeNotFound.
func (c *Checker) CanAccessHome(ctx context.Context, subject auth.Subject, homeID string) (bool, error) {
	h, err := c.homes.GetHome(ctx, homeID)
	if err != nil {
		return false, err
	}
	return c.allowedOn(ctx, subject, h)
}

// CanManageHome reports whether subject may change homeID: admins, the
// owner, and holders of an owner or admin grant.
func (c *Checker) CanManageHome(ctx context.Context, subject auth.Subject, homeID string) (bool, error) {
	h, err := c.homes.GetHome(ctx, homeID)
	if err != nil {
		return false, err
	}
	if subject.IsAdmin || (!subject.Anonymous() && h.OwnerID == subject.UserID) {
		return true, nil
	}
	grant, err := c.grantFor(ctx, subject, h.ID)
	if err != nil {
		return false, err
	}
	return HasLevel(grant, ManageLevels...), nil
}

// CanAccessDevice reports whether subject may see or control d.
func (c *Checker) CanAccessDevice(ctx context.Context, subject auth.Subject, d *device.Device) (bool, error) {
	if subject.IsAdmin {
		return true, nil
	}
	if d == nil || d.RoomID == nil || subject.Anonymous() {
		return false, nil
	}

	h, err := c.HomeOfRoom(ctx, *d.RoomID)
	if err != nil {
		if isHierarchyGap(err) {
			return false, nil
		}
		return false, err
	}
	return c.allowedOn(ctx, subject, h)
}

// RequireDevice is CanAccessDevice with a denial turned into ErrForbidden.
func (c *Checker) RequireDevice(ctx context.Context, subject auth.Subject, d *device.Device) error {
	ok, err := c.CanAccessDevice(ctx, subject, d)
	if err != nil {
		return fmt.Errorf("checking device access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// DeviceLookup finds a device by id. *device.Registry satisfies it.
type DeviceLookup interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// ObserveFilter returns the websocket event filter: a subject sees events
// for a device it can access. Unknown devices and lookup errors deny.
func (c *Checker) ObserveFilter(devices DeviceLookup) func(ctx context.Context, subject auth.Subject, deviceID string) bool {
	return func(ctx context.Context, subject auth.Subject, deviceID string) bool {
		if subject.IsAdmin {
			return true
		}
		d, err := devices.GetDevice(ctx, deviceID)
		if err != nil {
			return false
		}
		ok, err := c.CanAccessDevice(ctx, subject, d)
		return err == nil && ok
	}
}

// HomeOfRoom walks room → floor → home.
func (c *Checker) HomeOfRoom(ctx context.Context, roomID string) (*home.Home, error) {
	room, err := c.homes.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	floor, err := c.homes.GetFloor(ctx, room.FloorID)
	if err != nil {
		return nil, err
	}
	return c.homes.GetHome(ctx, floor.HomeID)
}

func (c *Checker) allowedOn(ctx context.Context, subject auth.Subject, h *home.Home) (bool, error) {
	if Allowed(subject, h.OwnerID, nil) {
		return true, nil
	}
	grant, err := c.grantFor(ctx, subject, h.ID)
	if err != nil {
		return false, err
	}
	return Allowed(subject, h.OwnerID, grant), nil
}

func (c *Checker) grantFor(ctx context.Context, subject auth.Subject, homeID string) (*home.Grant, error) {
	if subject.Anonymous() {
		return nil, nil
	}
	grant, err := c.homes.GetGrant(ctx, homeID, subject.UserID)
	if err != nil {
		if errors.Is(err, home.ErrGrantNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading access grant: %w", err)
	}
	return grant, nil
}

// isHierarchyGap reports a broken room → floor → home chain, which means
// the device is not in any home.
func isHierarchyGap(err error) bool {
	return errors.Is(err, home.ErrRoomNotFound) ||
		errors.Is(err, home.ErrFloorNotFound) ||
		errors.Is(err, home.ErrHomeNotFound)
}
