// Package action records device control commands and their outcomes.
//
// An Action is created pending before a command is attempted and resolved
// exactly once to success or failed afterwards.
package action

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Status is the lifecycle state of an Action.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var (
	ErrNotFound        = errors.New("action: not found")
	ErrDeviceNotFound  = errors.New("action: device not found")
	ErrAlreadyResolved = errors.New("action: already resolved")
	ErrInvalidStatus   = errors.New("action: invalid resolution status")
	ErrInvalidAction   = errors.New("action: invalid action")
)

// Action is one requested device command.
type Action struct {
	ID         int64      `json:"id"`
	DeviceID   string     `json:"device_id"`
	Action     string     `json:"action"`
	Value      *string    `json:"value,omitempty"`
	Status     Status     `json:"status"`
	UserID     *string    `json:"user_id,omitempty"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"timestamp"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// FormatValue renders a command value for storage. Numbers use the shortest
// exact form (75 → "75"), bools become "true"/"false", strings are kept
// as-is and anything else is stored as JSON. nil means no value.
func FormatValue(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case bool:
		s = strconv.FormatBool(val)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case json.Number:
		s = val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		s = string(b)
	}
	return &s
}
