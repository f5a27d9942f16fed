package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/auth"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

type updateUserRequest struct {
	IsActive *bool   `json:"is_active,omitempty"`
	Password *string `json:"password,omitempty"`
}

// handleListUsers returns all accounts. Admin only.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleCreateUser creates an active account. Admin only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		s.writeDomainError(w, err, "failed to create user")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeDomainError(w, err, "failed to create user")
		return
	}

	u := &auth.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		s.writeDomainError(w, err, "failed to create user")
		return
	}

	caller := subjectFrom(ctx)
	s.logger.Info("user created", "user_id", u.ID, "username", u.Username, "created_by", caller.UserID)
	s.audit.Record(audit.ActionCreate, audit.EntityUser, u.ID, caller.UserID, map[string]any{
		"username": u.Username,
		"is_admin": u.IsAdmin,
	})
	writeJSON(w, http.StatusCreated, u)
}

// handleUpdateUser enables or disables an account or resets its password.
// Admin only. An admin cannot deactivate their own account.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	caller := subjectFrom(ctx)

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsActive == nil && req.Password == nil {
		writeBadRequest(w, "nothing to update")
		return
	}
	if req.IsActive != nil && !*req.IsActive && id == caller.UserID {
		writeForbidden(w, "cannot deactivate your own account")
		return
	}

	var hash string
	if req.Password != nil {
		if err := auth.ValidatePassword(*req.Password); err != nil {
			s.writeDomainError(w, err, "failed to update user")
			return
		}
		var err error
		if hash, err = auth.HashPassword(*req.Password); err != nil {
			s.writeDomainError(w, err, "failed to update user")
			return
		}
	}

	details := map[string]any{}
	if req.IsActive != nil {
		if err := s.users.SetActive(ctx, id, *req.IsActive); err != nil {
			s.writeDomainError(w, err, "failed to update user")
			return
		}
		details["is_active"] = *req.IsActive
	}
	if req.Password != nil {
		if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
			s.writeDomainError(w, err, "failed to update user")
			return
		}
		details["password_reset"] = true
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to update user")
		return
	}

	s.logger.Info("user updated", "user_id", id, "updated_by", caller.UserID)
	s.audit.Record(audit.ActionUpdate, audit.EntityUser, id, caller.UserID, details)
	writeJSON(w, http.StatusOK, u)
}
