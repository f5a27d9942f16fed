package device

import "time"

// Device is a sensor or actuator reachable on the bus.
// This matches the devices table in migrations/20260301_090000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID   string `json:"device_id"`
	Name string `json:"name"`
	Type string `json:"type"`

	// Placement. RoomID links the device into a home for access checks;
	// Floor and Location form its bus address.
	RoomID   *string `json:"room_id,omitempty"`
	Floor    int     `json:"floor"`
	Location string  `json:"location"`

	// Liveness
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	IsActive bool       `json:"is_active"`

	// Local state, driven by the offline control path.
	State bool     `json:"state"`
	Value *float64 `json:"value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device. Pointer fields are
// cloned so the cache can hand out copies without sharing memory.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.RoomID != nil {
		room := *d.RoomID
		cpy.RoomID = &room
	}
	if d.LastSeen != nil {
		seen := *d.LastSeen
		cpy.LastSeen = &seen
	}
	if d.Value != nil {
		v := *d.Value
		cpy.Value = &v
	}
	return &cpy
}

// Status is the liveness of a device as last reported on the bus.
type Status string

// Device statuses.
const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
	StatusUnknown     Status = "unknown"
)

// AllStatuses returns every valid status.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusError, StatusMaintenance, StatusUnknown}
}

// ParseStatus maps a reported status string to a Status.
// Unrecognised or empty values map to StatusUnknown.
func ParseStatus(s string) Status {
	st := Status(s)
	if _, ok := validStatuses[st]; ok {
		return st
	}
	return StatusUnknown
}

// Common device types. Type is free-form; these are the ones the bridge and
// the sample seed know about.
const (
	TypeTemperature = "temperature"
	TypeHumidity    = "humidity"
	TypeLight       = "light"
	TypeSwitch      = "switch"
	TypeDimmer      = "dimmer"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type     string
	Location string
	RoomID   string
	Status   Status
	Floor    *int
}

// Matches reports whether d satisfies the filter.
func (f Filter) Matches(d *Device) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Location != "" && d.Location != f.Location {
		return false
	}
	if f.RoomID != "" && (d.RoomID == nil || *d.RoomID != f.RoomID) {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Floor != nil && d.Floor != *f.Floor {
		return false
	}
	return true
}

// Update lists the administrative fields that may change after creation.
// Nil fields are left untouched. An empty RoomID detaches the device from
// its room.
type Update struct {
	Name     *string `json:"name,omitempty"`
	Type     *string `json:"type,omitempty"`
	RoomID   *string `json:"room_id,omitempty"`
	Floor    *int    `json:"floor,omitempty"`
	Location *string `json:"location,omitempty"`
	Status   *Status `json:"status,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Type == nil && u.RoomID == nil && u.Floor == nil &&
		u.Location == nil && u.Status == nil && u.IsActive == nil
}

// Apply copies the set fields onto d.
func (u Update) Apply(d *Device) {
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.RoomID != nil {
		if *u.RoomID == "" {
			d.RoomID = nil
		} else {
			room := *u.RoomID
			d.RoomID = &room
		}
	}
	if u.Floor != nil {
		d.Floor = *u.Floor
	}
	if u.Location != nil {
		d.Location = *u.Location
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.IsActive != nil {
		d.IsActive = *u.IsActive
	}
}

// Stats summarises the cached registry.
type Stats struct {
	TotalDevices int
	ByStatus     map[Status]int
	ByType       map[string]int
}
