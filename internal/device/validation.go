package device

import (
	"fmt"
	"strings"
)

// Column limits from the devices table.
const (
	maxIDLength       = 50
	maxNameLength     = 100
	maxTypeLength     = 50
	maxLocationLength = 100
)

var validStatuses map[Status]struct{}

func init() {
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice checks every field of d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := validateSegment(d.Type, maxTypeLength, ErrInvalidType); err != nil {
		return err
	}
	if err := validateSegment(d.Location, maxLocationLength, ErrInvalidLocation); err != nil {
		return err
	}
	if d.Floor < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFloor, d.Floor)
	}
	return ValidateStatus(d.Status)
}

// ValidateID checks a device identifier.
func ValidateID(id string) error {
	return validateSegment(id, maxIDLength, ErrInvalidID)
}

// ValidateName checks a display name.
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

// ValidateStatus checks that s is a known status.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// validateSegment checks a value that ends up inside a bus topic: it must
// be non-empty, bounded, and free of separators and wildcards.
func validateSegment(v string, maxLen int, sentinel error) error {
	if v == "" {
		return fmt.Errorf("%w: value is required", sentinel)
	}
	if len(v) > maxLen {
		return fmt.Errorf("%w: exceeds %d characters", sentinel, maxLen)
	}
	if strings.ContainsAny(v, "/+# \t\n") {
		return fmt.Errorf("%w: %q contains a topic separator, wildcard or whitespace", sentinel, v)
	}
	return nil
}

// ValidateUpdate checks the fields an Update would set.
func ValidateUpdate(u Update) error {
	if u.Name != nil {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Type != nil {
		if err := validateSegment(*u.Type, maxTypeLength, ErrInvalidType); err != nil {
			return err
		}
	}
	if u.Location != nil {
		if err := validateSegment(*u.Location, maxLocationLength, ErrInvalidLocation); err != nil {
			return err
		}
	}
	if u.Floor != nil && *u.Floor < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFloor, *u.Floor)
	}
	if u.Status != nil {
		return ValidateStatus(*u.Status)
	}
	return nil
}
