package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Home is the root of the ownership hierarchy.
type Home struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Floor is one level of a home. Number matches the floor token used in
// bus topics (floor1, floor2, ...).
type Floor struct {
	ID        string    `json:"id"`
	HomeID    string    `json:"home_id"`
	Name      string    `json:"name"`
	Number    int       `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// Room is a space on a floor that devices can be assigned to.
type Room struct {
	ID        string    `json:"id"`
	FloorID   string    `json:"floor_id"`
	Name      string    `json:"name"`
	RoomType  string    `json:"room_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Level is the permission level recorded on a grant.
type Level string

// Access levels, highest first.
const (
	LevelOwner Level = "owner"
	LevelAdmin Level = "admin"
	LevelUser  Level = "user"
	LevelGuest Level = "guest"
)

// AllLevels returns every valid level.
func AllLevels() []Level {
	return []Level{LevelOwner, LevelAdmin, LevelUser, LevelGuest}
}

// ValidateLevel checks that l is a known level.
func ValidateLevel(l Level) error {
	for _, v := range AllLevels() {
		if l == v {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidLevel, l)
}

// Grant links a user to a home.
type Grant struct {
	HomeID    string    `json:"home_id"`
	UserID    string    `json:"user_id"`
	Level     Level     `json:"level"`
	GrantedBy string    `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const maxNameLength = 100

// ValidateName checks a home, floor or room name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
