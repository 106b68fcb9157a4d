package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8780,
			RateLimitRPM: 120,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "convoke-broker",
		},
		Maintenance: MaintenanceConfig{
			ReapSchedule:       "*/5 * * * *",
			GraceWindowSeconds: 3600,
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
		},
		DefaultSession:    protocol.DefaultSessionConfig(),
		GateTimeoutPolicy: "rejected",
	}
}

// Load reads config from a JSON5 file, then overlays environment
// variables; a missing file is not an error, it means "use defaults".
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays CONVOKE_* env vars onto the config; env
// vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("CONVOKE_HOST", &c.Gateway.Host)
	envInt("CONVOKE_PORT", &c.Gateway.Port)
	envInt("CONVOKE_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)
	envStr("CONVOKE_AUTH_TOKEN", &c.Gateway.AuthToken)

	envStr("CONVOKE_STORE_BACKEND", &c.Store.Backend)
	envStr("CONVOKE_POSTGRES_DSN", &c.Store.PostgresDSN)
	envStr("CONVOKE_SQLITE_PATH", &c.Store.SQLitePath)

	envStr("CONVOKE_BRIDGE_HOST", &c.Bridge.Host)
	envInt("CONVOKE_BRIDGE_PORT", &c.Bridge.Port)

	envBool("CONVOKE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envStr("CONVOKE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CONVOKE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CONVOKE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("CONVOKE_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	envStr("CONVOKE_MAINTENANCE_SCHEDULE", &c.Maintenance.ReapSchedule)
	envInt("CONVOKE_GRACE_WINDOW_SECONDS", &c.Maintenance.GraceWindowSeconds)

	envStr("CONVOKE_LOG_FORMAT", &c.Logging.Format)
	envStr("CONVOKE_LOG_LEVEL", &c.Logging.Level)

	envStr("CONVOKE_GATE_TIMEOUT_POLICY", &c.GateTimeoutPolicy)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config; exported for a future config-reload subcommand.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a short content fingerprint of cfg: the first 8 bytes of
// the SHA-256 of its JSON encoding, hex-encoded.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// SQLitePathExpanded returns the SQLite store path with a leading "~"
// expanded to the user's home directory.
func (c *Config) SQLitePathExpanded() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Store.SQLitePath)
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
