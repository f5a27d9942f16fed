package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// corsMaxAge is how long browsers may cache a preflight response (seconds).
const corsMaxAge = 300

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates from the query string, validated in handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/readings", s.handleListReadings)
					r.Post("/control", s.handleControl)
					r.Get("/actions", s.handleListActions)
				})
			})

			r.Route("/homes", func(r chi.Router) {
				r.Get("/", s.handleListHomes)
				r.Post("/", s.handleCreateHome)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHome)
					r.Get("/floors", s.handleListFloors)
					r.Post("/floors", s.handleCreateFloor)
					r.Get("/access", s.handleListGrants)
					r.Put("/access/{userID}", s.handleSetGrant)
					r.Delete("/access/{userID}", s.handleRevokeGrant)
				})
			})

			r.Route("/floors/{id}/rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)
				r.Post("/", s.handleCreateRoom)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Patch("/{id}", s.handleUpdateUser)
			})

			r.With(s.requireAdmin).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         corsMaxAge,
	}
}

// handleHealth returns the server health status. The service is degraded
// while an enabled bus is disconnected.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	bus := "disabled"
	if s.bus != nil {
		bus = "connected"
		if !s.bus.IsConnected() {
			bus = "disconnected"
			status = "degraded"
		}
	}

	observers := 0
	if s.hub != nil {
		observers = s.hub.ClientCount()
	}

	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"bus":            bus,
		"control_mode":   controlMode(s.dispatcher.Online()),
		"devices":        stats.TotalDevices,
		"device_status":  stats.ByStatus,
		"observers":      observers,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func controlMode(online bool) string {
	if online {
		return "bus"
	}
	return "local"
}
