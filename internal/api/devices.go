package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
)

// createDeviceRequest is the body of POST /devices. Only the
// administrative fields are accepted; liveness and local state start at
// their defaults.
type createDeviceRequest struct {
	ID       string  `json:"device_id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	RoomID   *string `json:"room_id"`
	Floor    int     `json:"floor"`
	Location string  `json:"location"`
	IsActive *bool   `json:"is_active"`
}

// deviceDetail is a device with its newest stored reading.
type deviceDetail struct {
	*device.Device
	LatestReading *telemetry.Reading `json:"latest_reading,omitempty"`
}

// handleListDevices returns the devices visible to the caller.
//
// Query parameters:
//   - type: filter by device type
//   - location: filter by location segment
//   - room_id: filter by room
//   - status: filter by status (online, offline, error, maintenance, unknown)
//   - floor: filter by floor number
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f := device.Filter{
		Type:     q.Get("type"),
		Location: q.Get("location"),
		RoomID:   q.Get("room_id"),
		Status:   device.Status(q.Get("status")),
	}
	if v := q.Get("floor"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "floor must be an integer")
			return
		}
		f.Floor = &n
	}

	devices, err := s.registry.ListDevices(ctx, f)
	if err != nil {
		s.writeDomainError(w, err, "failed to list devices")
		return
	}

	subject := subjectFrom(ctx)
	if !subject.IsAdmin {
		visible := devices[:0]
		for i := range devices {
			ok, err := s.access.CanAccessDevice(ctx, subject, &devices[i])
			if err != nil {
				s.writeDomainError(w, err, "failed to list devices")
				return
			}
			if ok {
				visible = append(visible, devices[i])
			}
		}
		devices = visible
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	latest, err := s.readings.Latest(r.Context(), dev.ID)
	if err != nil {
		s.writeDomainError(w, err, "failed to load latest reading")
		return
	}
	writeJSON(w, http.StatusOK, deviceDetail{Device: dev, LatestReading: latest})
}

// handleCreateDevice creates a new device. Admins may create anywhere;
// other callers need manage rights on the home of the target room.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	subject := subjectFrom(ctx)
	if ok, err := s.canManageRoom(ctx, subject, req.RoomID); err != nil {
		s.writeDomainError(w, err, "failed to create device")
		return
	} else if !ok {
		writeForbidden(w, "access denied")
		return
	}

	dev := &device.Device{
		ID:       req.ID,
		Name:     req.Name,
		Type:     req.Type,
		RoomID:   req.RoomID,
		Floor:    req.Floor,
		Location: req.Location,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := s.registry.CreateDevice(ctx, dev); err != nil {
		s.writeDomainError(w, err, "failed to create device")
		return
	}

	s.audit.Record(audit.ActionCreate, audit.EntityDevice, dev.ID, subject.UserID, map[string]any{
		"name": dev.Name, "type": dev.Type, "floor": dev.Floor, "location": dev.Location,
	})
	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice applies an allow-listed partial update. Moving a
// device into another room needs manage rights on both homes.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}

	var u device.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if u.IsEmpty() {
		writeBadRequest(w, "no updatable fields supplied")
		return
	}

	subject := subjectFrom(ctx)
	rooms := []*string{existing.RoomID}
	if u.RoomID != nil && *u.RoomID != "" {
		rooms = append(rooms, u.RoomID)
	}
	for _, room := range rooms {
		ok, err := s.canManageRoom(ctx, subject, room)
		if err != nil {
			s.writeDomainError(w, err, "failed to update device")
			return
		}
		if !ok {
			writeForbidden(w, "access denied")
			return
		}
	}

	updated, err := s.registry.UpdateDevice(ctx, id, u)
	if err != nil {
		s.writeDomainError(w, err, "failed to update device")
		return
	}

	s.audit.Record(audit.ActionUpdate, audit.EntityDevice, id, subject.UserID, nil)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteDevice removes a device together with its readings and actions.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return
	}

	subject := subjectFrom(ctx)
	if ok, err := s.canManageRoom(ctx, subject, existing.RoomID); err != nil {
		s.writeDomainError(w, err, "failed to delete device")
		return
	} else if !ok {
		writeForbidden(w, "access denied")
		return
	}

	if err := s.registry.DeleteDevice(ctx, id); err != nil {
		s.writeDomainError(w, err, "failed to delete device")
		return
	}

	s.audit.Record(audit.ActionDelete, audit.EntityDevice, id, subject.UserID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// loadDevice fetches the {id} device and runs the access predicate,
// writing the error response itself when either fails.
func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	ctx := r.Context()
	dev, err := s.registry.GetDevice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get device")
		return nil, false
	}
	if err := s.access.RequireDevice(ctx, subjectFrom(ctx), dev); err != nil {
		s.writeDomainError(w, err, "failed to check access")
		return nil, false
	}
	return dev, true
}

// canManageRoom reports whether subject may place or change devices in
// roomID. Unassigned devices are admin-only.
func (s *Server) canManageRoom(ctx context.Context, subject auth.Subject, roomID *string) (bool, error) {
	if subject.IsAdmin {
		return true, nil
	}
	if roomID == nil || *roomID == "" {
		return false, nil
	}
	h, err := s.access.HomeOfRoom(ctx, *roomID)
	if err != nil {
		return false, err
	}
	return s.access.CanManageHome(ctx, subject, h.ID)
}
