package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/home"
)

type createHomeRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	// OwnerID is honoured for admins creating a home on a user's behalf.
	OwnerID string `json:"owner_id,omitempty"`
}

type createFloorRequest struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
}

type createRoomRequest struct {
	Name     string `json:"name"`
	RoomType string `json:"room_type"`
}

type setGrantRequest struct {
	Level home.Level `json:"level"`
}

// handleListHomes returns every home for admins, otherwise the homes the
// caller owns or holds a grant on.
func (s *Server) handleListHomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := subjectFrom(ctx)

	var (
		homes []home.Home
		err   error
	)
	if subject.IsAdmin {
		homes, err = s.homes.ListHomes(ctx)
	} else {
		homes, err = s.homes.ListHomesForUser(ctx, subject.UserID)
	}
	if err != nil {
		s.writeDomainError(w, err, "failed to list homes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"homes": homes, "count": len(homes)})
}

// handleCreateHome creates a home owned by the caller. Admins may name
// another owner.
func (s *Server) handleCreateHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createHomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	subject := subjectFrom(ctx)
	owner := subject.UserID
	if req.OwnerID != "" && req.OwnerID != owner {
		if !subject.IsAdmin {
			writeForbidden(w, "only admins can create homes for other users")
			return
		}
		owner = req.OwnerID
	}
	h := &home.Home{Name: req.Name, Address: req.Address, OwnerID: owner}
	if err := s.homes.CreateHome(ctx, h); err != nil {
		s.writeDomainError(w, err, "failed to create home")
		return
	}

	s.audit.Record(audit.ActionCreate, audit.EntityHome, h.ID, subject.UserID, map[string]any{"name": h.Name, "owner_id": h.OwnerID})
	writeJSON(w, http.StatusCreated, h)
}

// handleGetHome returns a home with its floors.
func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !s.authorizeHome(w, r, id, false) {
		return
	}

	h, err := s.homes.GetHome(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to get home")
		return
	}
	floors, err := s.homes.ListFloors(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to list floors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"home": h, "floors": floors})
}

func (s *Server) handleListFloors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeHome(w, r, id, false) {
		return
	}

	floors, err := s.homes.ListFloors(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to list floors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"floors": floors, "count": len(floors)})
}

func (s *Server) handleCreateFloor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !s.authorizeHome(w, r, id, true) {
		return
	}

	var req createFloorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	f := &home.Floor{HomeID: id, Name: req.Name, Number: req.Number}
	if err := s.homes.CreateFloor(ctx, f); err != nil {
		s.writeDomainError(w, err, "failed to create floor")
		return
	}

	s.audit.Record(audit.ActionCreate, audit.EntityFloor, f.ID, subjectFrom(ctx).UserID,
		map[string]any{"home_id": id, "number": f.Number})
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, ok := s.loadFloor(w, r)
	if !ok || !s.authorizeHome(w, r, f.HomeID, false) {
		return
	}

	rooms, err := s.homes.ListRooms(ctx, f.ID)
	if err != nil {
		s.writeDomainError(w, err, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, ok := s.loadFloor(w, r)
	if !ok || !s.authorizeHome(w, r, f.HomeID, true) {
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	room := &home.Room{FloorID: f.ID, Name: req.Name, RoomType: req.RoomType}
	if err := s.homes.CreateRoom(ctx, room); err != nil {
		s.writeDomainError(w, err, "failed to create room")
		return
	}

	s.audit.Record(audit.ActionCreate, audit.EntityRoom, room.ID, subjectFrom(ctx).UserID,
		map[string]any{"floor_id": f.ID, "name": room.Name})
	writeJSON(w, http.StatusCreated, room)
}

// handleListGrants lists who can reach a home. Requires manage rights.
func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeHome(w, r, id, true) {
		return
	}

	grants, err := s.homes.ListGrants(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to list access grants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"grants": grants, "count": len(grants)})
}

// handleSetGrant creates or replaces a user's grant on a home.
func (s *Server) handleSetGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")
	if !s.authorizeHome(w, r, id, true) {
		return
	}

	var req setGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == "" {
		req.Level = home.LevelUser
	}

	subject := subjectFrom(ctx)
	g := &home.Grant{HomeID: id, UserID: userID, Level: req.Level, GrantedBy: subject.UserID}
	if err := s.homes.SetGrant(ctx, g); err != nil {
		s.writeDomainError(w, err, "failed to set access grant")
		return
	}

	s.audit.Record(audit.ActionGrant, audit.EntityAccess, id, subject.UserID,
		map[string]any{"user_id": userID, "level": string(g.Level)})
	writeJSON(w, http.StatusOK, g)
}

// handleRevokeGrant removes a user's grant on a home.
func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")
	if !s.authorizeHome(w, r, id, true) {
		return
	}

	if err := s.homes.DeleteGrant(ctx, id, userID); err != nil {
		s.writeDomainError(w, err, "failed to revoke access grant")
		return
	}

	s.audit.Record(audit.ActionRevoke, audit.EntityAccess, id, subjectFrom(ctx).UserID,
		map[string]any{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

// authorizeHome checks the caller against homeID, writing 403/404 itself.
// manage selects the stricter owner/admin check.
func (s *Server) authorizeHome(w http.ResponseWriter, r *http.Request, homeID string, manage bool) bool {
	ctx := r.Context()
	subject := subjectFrom(ctx)

	check := s.access.CanAccessHome
	if manage {
		check = s.access.CanManageHome
	}
	ok, err := check(ctx, subject, homeID)
	if err != nil {
		s.writeDomainError(w, err, "failed to check access")
		return false
	}
	if !ok {
		writeForbidden(w, "access denied")
		return false
	}
	return true
}

func (s *Server) loadFloor(w http.ResponseWriter, r *http.Request) (*home.Floor, bool) {
	f, err := s.homes.GetFloor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get floor")
		return nil, false
	}
	return f, true
}
