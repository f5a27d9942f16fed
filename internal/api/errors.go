package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homewatch-core/internal/access"
	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/control"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/home"
)

// errorBody is the envelope of every error response.
type errorBody struct {
	Error Error `json:"error"`
}

// Error represents a structured error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: Error{Code: code, Message: message}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps package sentinels onto HTTP responses. Anything
// unrecognised is logged and reported as a 500 with fallback as message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		writeForbidden(w, "access denied")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, home.ErrHomeNotFound):
		writeNotFound(w, "home not found")
	case errors.Is(err, home.ErrFloorNotFound):
		writeNotFound(w, "floor not found")
	case errors.Is(err, home.ErrRoomNotFound), errors.Is(err, device.ErrRoomNotFound):
		writeNotFound(w, "room not found")
	case errors.Is(err, home.ErrGrantNotFound):
		writeNotFound(w, "access grant not found")
	case errors.Is(err, home.ErrUserNotFound), errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, device.ErrDeviceExists), errors.Is(err, home.ErrFloorExists),
		errors.Is(err, auth.ErrUsernameExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

// isValidationError reports whether err is a caller mistake.
func isValidationError(err error) bool {
	for _, target := range []error{
		device.ErrInvalidDevice,
		device.ErrInvalidID,
		device.ErrInvalidName,
		device.ErrInvalidType,
		device.ErrInvalidLocation,
		device.ErrInvalidFloor,
		device.ErrInvalidStatus,
		home.ErrInvalidName,
		home.ErrInvalidLevel,
		control.ErrInvalidCommand,
		auth.ErrInvalidUsername,
		auth.ErrPasswordTooShort,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
