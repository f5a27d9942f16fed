package home

import "errors"

var (
	// ErrHomeNotFound is returned when a home ID does not exist.
	ErrHomeNotFound = errors.New("home: not found")

	// ErrFloorNotFound is returned when a floor ID does not exist.
	ErrFloorNotFound = errors.New("home: floor not found")

	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("home: room not found")

	// ErrGrantNotFound is returned when a user has no grant on a home.
	ErrGrantNotFound = errors.New("home: access grant not found")

	// ErrFloorExists is returned when a home already has a floor with that number.
	ErrFloorExists = errors.New("home: floor number already exists")

	// ErrUserNotFound is returned when an owner or grantee does not exist.
	ErrUserNotFound = errors.New("home: user not found")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("home: invalid name")

	// ErrInvalidLevel is returned when an access level is not recognised.
	ErrInvalidLevel = errors.New("home: invalid access level")
)
