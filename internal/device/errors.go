package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or address does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidID is returned when a device ID is empty, too long or not topic-safe.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidType is returned when a device type is empty, too long or not topic-safe.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidLocation is returned when a location is empty, too long or not topic-safe.
	ErrInvalidLocation = errors.New("device: invalid location")

	// ErrInvalidFloor is returned for negative floor numbers.
	ErrInvalidFloor = errors.New("device: invalid floor")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrRoomNotFound is returned when a referenced room does not exist.
	ErrRoomNotFound = errors.New("device: room not found")
)
