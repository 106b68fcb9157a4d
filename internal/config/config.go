package config

import (
	"sync"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// GatewayConfig holds the broker's network-facing surface.
// AuthToken, when set, is the bearer token every websocket upgrade must
// present; it is a secret and only ever read from CONVOKE_AUTH_TOKEN.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
	AuthToken    string `json:"-"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "postgres", "sqlite".
	Backend     string `json:"backend"`
	PostgresDSN string `json:"-"` // secret: env CONVOKE_POSTGRES_DSN only
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// BridgeConfig points at the external decision-tracking daemon.
type BridgeConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export for traces. When
// enabled, spans are exported to an OTLP-compatible backend (Jaeger,
// Tempo, etc).
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// MaintenanceConfig configures the scheduled session reaper.
type MaintenanceConfig struct {
	// ReapSchedule is a cron expression evaluated by the reaper.
	ReapSchedule       string `json:"reap_schedule"`
	GraceWindowSeconds int    `json:"grace_window_seconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`  // "debug", "info", "warn", "error"
}

// Config is the broker's root configuration.
type Config struct {
	Gateway           GatewayConfig          `json:"gateway"`
	Store             StoreConfig            `json:"store"`
	Bridge            BridgeConfig           `json:"bridge,omitempty"`
	Telemetry         TelemetryConfig        `json:"telemetry,omitempty"`
	Maintenance       MaintenanceConfig      `json:"maintenance"`
	Logging           LoggingConfig          `json:"logging"`
	DefaultSession    protocol.SessionConfig `json:"default_session"`
	GateTimeoutPolicy string                 `json:"gate_timeout_policy"`

	mu sync.RWMutex
}

// ReplaceFrom copies all data fields from src into c, preserving c's
// mutex; used by a future config-reload subcommand.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Store = src.Store
	c.Bridge = src.Bridge
	c.Telemetry = src.Telemetry
	c.Maintenance = src.Maintenance
	c.Logging = src.Logging
	c.DefaultSession = src.DefaultSession
	c.GateTimeoutPolicy = src.GateTimeoutPolicy
}
