package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/homewatch-core/internal/access"
	"github.com/nerrad567/homewatch-core/internal/action"
	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/control"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/home"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/config"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/homewatch-core/internal/metrics"
	"github.com/nerrad567/homewatch-core/internal/observer"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BusStatus reports the bus connection for the health endpoint.
// *mqtt.Client satisfies it.
type BusStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	MetricsPath string
	Logger      *logging.Logger

	Auth    *auth.Service
	Tickets *auth.TicketStore
	Users   auth.UserRepository

	Registry   *device.Registry
	Homes      home.Repository
	Access     *access.Checker
	Readings   telemetry.Store
	Actions    action.Repository
	Dispatcher *control.Dispatcher
	Hub        *observer.Hub

	AuditRepo audit.Repository
	Audit     *audit.Recorder
	Metrics   *metrics.Collector

	// Bus is nil when the service runs without a broker.
	Bus     BusStatus
	Version string
}

// Server is the HTTP API server for Homewatch Core.
//
// It follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	metricsPath string
	logger      *logging.Logger

	auth    *auth.Service
	tickets *auth.TicketStore
	users   auth.UserRepository

	registry   *device.Registry
	homes      home.Repository
	access     *access.Checker
	readings   telemetry.Store
	actions    action.Repository
	dispatcher *control.Dispatcher
	hub        *observer.Hub

	auditRepo audit.Repository
	audit     *audit.Recorder
	metrics   *metrics.Collector

	bus     BusStatus
	version string
	started time.Time
	now     func() time.Time
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Homes == nil:
		return nil, fmt.Errorf("home repository is required")
	case deps.Access == nil:
		return nil, fmt.Errorf("access checker is required")
	case deps.Readings == nil:
		return nil, fmt.Errorf("reading store is required")
	case deps.Actions == nil:
		return nil, fmt.Errorf("action repository is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("control dispatcher is required")
	}

	tickets := deps.Tickets
	if tickets == nil {
		tickets = auth.NewTicketStore(auth.DefaultTicketTTL)
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		metricsPath: deps.MetricsPath,
		logger:      deps.Logger,
		auth:        deps.Auth,
		tickets:     tickets,
		users:       deps.Users,
		registry:    deps.Registry,
		homes:       deps.Homes,
		access:      deps.Access,
		readings:    deps.Readings,
		actions:     deps.Actions,
		dispatcher:  deps.Dispatcher,
		hub:         deps.Hub,
		auditRepo:   deps.AuditRepo,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		bus:         deps.Bus,
		version:     deps.Version,
		started:     time.Now(),
		now:         time.Now,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Hijacked WebSocket
// connections are not tracked here; close the hub separately.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
