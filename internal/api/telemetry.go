package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homewatch-core/internal/control"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
)

// maxReadingDays caps the ?days= window.
const maxReadingDays = 366

// controlRequest is the body of POST /devices/{id}/control.
type controlRequest struct {
	Action string `json:"action"`
	Value  any    `json:"value"`
}

// controlResponse is the body returned by the control endpoint. Success
// always matches the stored status of action_id.
type controlResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ActionID int64  `json:"action_id"`
	Status   string `json:"status"`
	Topic    string `json:"topic,omitempty"`
}

// handleListReadings returns a device's readings, newest first.
//
// Query parameters:
//   - days: only readings from the last N days
//   - limit: max results (default 100, max 10000)
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var query telemetry.Query
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 || days > maxReadingDays {
			writeBadRequest(w, "days must be between 1 and 366")
			return
		}
		query.Since = s.now().AddDate(0, 0, -days)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		query.Limit = n
	}

	readings, err := s.readings.List(r.Context(), dev.ID, query)
	if err != nil {
		s.writeDomainError(w, err, "failed to list readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"readings":  readings,
		"count":     len(readings),
	})
}

// handleControl sends a command to a device.
//
// A command that was attempted but failed still produces an Action and
// answers with success false: 502 when the bus refused it, 422 when the
// local path could not apply it.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req controlRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.dispatcher.Dispatch(ctx, control.Command{
		DeviceID: chi.URLParam(r, "id"),
		Action:   req.Action,
		Value:    req.Value,
		Subject:  subjectFrom(ctx),
	})
	if err != nil {
		s.writeDomainError(w, err, "failed to dispatch command")
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
		if res.Topic != "" {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, controlResponse{
		Success:  res.Success,
		Message:  res.Message,
		ActionID: res.ActionID,
		Status:   string(res.Status),
		Topic:    res.Topic,
	})
}

// handleListActions returns a device's command history, newest first.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	actions, err := s.actions.ListByDevice(r.Context(), dev.ID, limit)
	if err != nil {
		s.writeDomainError(w, err, "failed to list actions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": dev.ID,
		"actions":   actions,
		"count":     len(actions),
	})
}
