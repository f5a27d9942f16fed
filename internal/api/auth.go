package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *auth.User `json:"user"`
}

// handleLogin authenticates a user and returns a JWT token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid credentials")
		case errors.Is(err, auth.ErrUserInactive):
			writeForbidden(w, "account is inactive")
		default:
			s.logger.Error("login failed", "username", req.Username, "error", err)
			writeInternalError(w, "login failed")
		}
		return
	}

	s.audit.Record(audit.ActionLogin, audit.EntityUser, token.User.ID, token.User.ID, nil)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   int(token.ExpiresAt.Sub(s.now()).Seconds()),
		User:        token.User,
	})
}

// handleWSTicket trades the caller's bearer token for a single-use
// WebSocket ticket, so the JWT never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, ttl, err := s.tickets.Issue(subjectFrom(r.Context()))
	if err != nil {
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ttl.Seconds()),
	})
}

// handleWebSocket upgrades an authenticated caller onto the observer hub.
// It accepts a ticket from POST /auth/ws-ticket, or the access token itself
// as ?token= or a bearer header for non-browser clients.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "live events are not available")
		return
	}

	var (
		subject auth.Subject
		err     error
	)
	q := r.URL.Query()
	switch {
	case q.Get("ticket") != "":
		subject, err = s.tickets.Redeem(q.Get("ticket"))
	case q.Get("token") != "":
		subject, err = s.auth.Verify(q.Get("token"))
	case bearerToken(r) != "":
		subject, err = s.auth.Verify(bearerToken(r))
	default:
		writeUnauthorized(w, "ticket or token query parameter is required")
		return
	}
	if err != nil {
		writeUnauthorized(w, "invalid or expired credentials")
		return
	}

	s.hub.Serve(w, r, subject)
}
