package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1884
    client_id: "test-client"
  qos: 0
retention:
  days: 7
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("MQTT.Broker.Port = %d, want 1884", cfg.MQTT.Broker.Port)
	}
	if cfg.Retention.Days != 7 {
		t.Errorf("Retention.Days = %d, want 7", cfg.Retention.Days)
	}
	// Unset sections keep their defaults.
	if cfg.Ingest.QueueSize != 256 {
		t.Errorf("Ingest.QueueSize = %d, want default 256", cfg.Ingest.QueueSize)
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled should default to true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Both problems are reported in one error.
	if !strings.Contains(err.Error(), "database.path") || !strings.Contains(err.Error(), "jwt.secret") {
		t.Errorf("error %q should list every validation failure", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name: "broker ignored when mqtt disabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.Broker.Host = ""
				c.MQTT.Broker.ClientID = ""
			},
		},
		{
			name:    "invalid api port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero ingest queue",
			mutate:  func(c *Config) { c.Ingest.QueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "zero publish timeout",
			mutate:  func(c *Config) { c.Control.PublishTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Retention.Days = -1 },
			wantErr: true,
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = testJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		API:       APIConfig{Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60}},
		Ingest:    IngestConfig{WriteTimeout: 1500},
		Control:   ControlConfig{PublishTimeout: 250},
		Retention: RetentionConfig{Days: 30},
		Security:  SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ingest", cfg.GetIngestWriteTimeout(), 1500 * time.Millisecond},
		{"publish", cfg.GetPublishTimeout(), 250 * time.Millisecond},
		{"retention", cfg.GetRetentionHorizon(), 30 * 24 * time.Hour},
		{"retention interval fallback", cfg.GetRetentionInterval(), time.Hour},
		{"access token", cfg.GetAccessTokenTTL(), 15 * time.Minute},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("HOMEWATCH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HOMEWATCH_MQTT_ENABLED", "false")
	t.Setenv("HOMEWATCH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HOMEWATCH_MQTT_PORT", "8883")
	t.Setenv("HOMEWATCH_MQTT_USERNAME", "testuser")
	t.Setenv("HOMEWATCH_MQTT_PASSWORD", "testpass")
	t.Setenv("HOMEWATCH_API_HOST", "192.168.1.1")
	t.Setenv("HOMEWATCH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HOMEWATCH_RETENTION_DAYS", "14")
	t.Setenv("HOMEWATCH_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = true, want false")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Retention.Days != 14 {
		t.Errorf("Retention.Days = %d, want 14", cfg.Retention.Days)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("HOMEWATCH_MQTT_PORT", "not-a-port")
	t.Setenv("HOMEWATCH_RETENTION_DAYS", "forever")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want unchanged 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want unchanged 30", cfg.Retention.Days)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("defaultConfig Retention.Days = %d, want 30", cfg.Retention.Days)
	}
}
