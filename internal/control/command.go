package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/device"
)

// Recognised local actions.
const (
	ActionOn     = "on"
	ActionOff    = "off"
	ActionToggle = "toggle"
	ActionSet    = "set"
)

const maxActionLength = 50

var (
	// ErrInvalidCommand is returned for a command without a usable action.
	ErrInvalidCommand = errors.New("control: invalid command")

	errUnsupportedAction = errors.New("unsupported action")
	errInvalidValue      = errors.New("invalid value")
)

// Command is a request to act on a device.
type Command struct {
	DeviceID string
	Action   string
	Value    any
	Subject  auth.Subject
}

// Validate normalises the action name and checks the command shape.
func (c *Command) Validate() error {
	c.Action = strings.ToLower(strings.TrimSpace(c.Action))
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidCommand)
	}
	if c.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}
	if len(c.Action) > maxActionLength {
		return fmt.Errorf("%w: action exceeds %d characters", ErrInvalidCommand, maxActionLength)
	}
	return nil
}

// payload is the JSON published on the control topic.
type payload struct {
	Action string `json:"action"`
	Value  any    `json:"value"`
}

func encodePayload(c Command) ([]byte, error) {
	return json.Marshal(payload{Action: c.Action, Value: c.Value})
}

// applyLocal mutates d for a recognised action. set takes a number (or a
// numeric string or bool) and switches the device on for any non-zero value.
func applyLocal(d *device.Device, action string, value any) error {
	switch action {
	case ActionOn:
		d.State = true
	case ActionOff:
		d.State = false
	case ActionToggle:
		d.State = !d.State
	case ActionSet:
		v, err := numericValue(value)
		if err != nil {
			return err
		}
		d.Value = &v
		d.State = v != 0
	default:
		return fmt.Errorf("%w: %q", errUnsupportedAction, action)
	}
	d.Status = device.StatusOnline
	return nil
}

func numericValue(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errInvalidValue, val)
		}
		return f, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errInvalidValue, val)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: set requires a value", errInvalidValue)
	}
	return 0, fmt.Errorf("%w: %v", errInvalidValue, v)
}
