// Homewatch Core - home telemetry and control bridge
//
// This is the main entry point. It ingests sensor telemetry from an MQTT
// broker, keeps the device registry and reading history in SQLite, and
// exposes device control over a REST API and a websocket event stream.
// Without a broker the service keeps running and control commands change
// device state locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/homewatch-core/migrations"

	"github.com/nerrad567/homewatch-core/internal/access"
	"github.com/nerrad567/homewatch-core/internal/action"
	"github.com/nerrad567/homewatch-core/internal/api"
	"github.com/nerrad567/homewatch-core/internal/audit"
	"github.com/nerrad567/homewatch-core/internal/auth"
	"github.com/nerrad567/homewatch-core/internal/bridge"
	"github.com/nerrad567/homewatch-core/internal/control"
	"github.com/nerrad567/homewatch-core/internal/device"
	"github.com/nerrad567/homewatch-core/internal/home"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/config"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/database"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/homewatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homewatch-core/internal/metrics"
	"github.com/nerrad567/homewatch-core/internal/observer"
	"github.com/nerrad567/homewatch-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/homewatch.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // composition root
	log := logging.Default()
	log.Info("starting Homewatch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	if cfg.Devices.SeedSamples {
		n, seedErr := registry.SeedSamples(ctx)
		if seedErr != nil {
			return fmt.Errorf("seeding sample devices: %w", seedErr)
		}
		if n > 0 {
			log.Info("sample devices seeded", "count", n)
		}
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	// Users and homes
	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users,
		cfg.Security.Bootstrap.AdminUsername,
		cfg.Security.Bootstrap.AdminPassword,
		log,
	); seedErr != nil {
		return fmt.Errorf("seeding administrator: %w", seedErr)
	}
	homes := home.NewSQLiteRepository(db.DB)
	checker := access.NewChecker(homes)

	readings := telemetry.NewSQLiteStore(db.DB)
	actions := action.NewSQLiteRepository(db.DB)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)
	recorder.Start()
	defer func() {
		log.Info("flushing audit log")
		recorder.Close()
	}()

	collector := metrics.New()

	hub := observer.NewHub(cfg.WebSocket, log)
	hub.SetMetrics(collector)
	hub.SetAccessFilter(checker.ObserveFilter(registry))
	defer func() {
		log.Info("closing observer connections")
		hub.Close()
	}()

	// InfluxDB mirror (optional)
	var (
		influxClient  *influxdb.Client
		readingMirror telemetry.Mirror
		actionMirror  control.ActionMirror
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		readingMirror = influxClient
		actionMirror = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bus, ingestion and control
	var (
		mqttClient *mqtt.Client
		busStatus  api.BusStatus
		publisher  control.Publisher
	)
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.New(cfg.MQTT)
		mqttClient.SetLogger(log)

		ingest, bridgeErr := bridge.New(bridge.Options{
			Bus:          mqttClient,
			Registry:     registry,
			Readings:     readings,
			Emitter:      hub,
			Mirror:       readingMirror,
			Metrics:      collector,
			Logger:       log,
			QueueSize:    cfg.Ingest.QueueSize,
			WriteTimeout: cfg.GetIngestWriteTimeout(),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating ingestion bridge: %w", bridgeErr)
		}
		// Start before Connect so the first OnConnect subscribes.
		if startErr := ingest.Start(ctx); startErr != nil {
			return fmt.Errorf("starting ingestion bridge: %w", startErr)
		}
		defer ingest.Stop()

		connectErr := mqttClient.Connect(ctx)
		if !mqtt.Connected(connectErr) {
			return fmt.Errorf("connecting to MQTT: %w", connectErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		if connectErr != nil {
			log.Warn("MQTT broker not reachable yet, retrying in background", "error", connectErr)
		} else {
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}

		busStatus = mqttClient
		publisher = mqttClient
	} else {
		collector.SetBusConnected(false)
		log.Info("MQTT disabled, device control runs locally")
	}

	dispatcher, err := control.NewDispatcher(control.Options{
		Devices:        registry,
		Actions:        actions,
		Access:         checker,
		Publisher:      publisher,
		Emitter:        hub,
		Mirror:         actionMirror,
		Metrics:        collector,
		Logger:         log,
		PublishTimeout: cfg.GetPublishTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating control dispatcher: %w", err)
	}

	// Retention
	if horizon := cfg.GetRetentionHorizon(); horizon > 0 {
		retention := telemetry.NewRetention(readings, horizon, cfg.GetRetentionInterval(), log)
		retention.SetOnPurge(collector.ReadingsPurged)
		retention.Start(ctx)
		defer retention.Stop()
		log.Info("reading retention enabled", "days", cfg.Retention.Days)
	} else {
		log.Info("reading retention disabled")
	}

	// API
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		MetricsPath: metricsPath,
		Logger:      log,
		Auth:        auth.NewService(users, cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL()),
		Tickets:     auth.NewTicketStore(auth.DefaultTicketTTL),
		Users:       users,
		Registry:    registry,
		Homes:       homes,
		Access:      checker,
		Readings:    readings,
		Actions:     actions,
		Dispatcher:  dispatcher,
		Hub:         hub,
		AuditRepo:   auditRepo,
		Audit:       recorder,
		Metrics:     collector,
		Bus:         busStatus,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"control_mode", controlMode(dispatcher),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, MQTT, bridge,
	// retention, InfluxDB, observers, audit, database.

	log.Info("Homewatch Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure the service cannot run without.
// The broker is excluded: a missing broker degrades control to local mode.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

func controlMode(d *control.Dispatcher) string {
	if d.Online() {
		return "bus"
	}
	return "local"
}
