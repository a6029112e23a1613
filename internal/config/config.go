// Package config loads dflow's runtime configuration: defaults layered
// under an optional TOML file, then environment variable overrides
// (DFLOW_*).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is dflow's full runtime configuration.
type Config struct {
	Sandbox   SandboxConfig   `toml:"sandbox"`
	HTTP      HTTPConfig      `toml:"http"`
	Audit     AuditConfig     `toml:"audit"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// SandboxConfig governs the fuel-metered cooperative-yield model applied
// by a real component-runtime Engine.
type SandboxConfig struct {
	// FuelLimit bounds a guest's execution budget. 0 means unlimited.
	FuelLimit uint64 `toml:"fuel_limit"`
	// YieldInterval is how often (in fuel units) the guest
	// cooperatively yields back to the host scheduler.
	YieldInterval uint64 `toml:"yield_interval"`
	// Image is the container image a sandbox/container.Engine starts per
	// guest instantiation.
	Image string `toml:"image"`
}

// HTTPConfig governs the HTTP effect handler's transport.
type HTTPConfig struct {
	// TimeoutSeconds bounds a single outbound HTTP effect call. 0 means
	// no timeout beyond the caller's context deadline.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// AuditConfig selects the optional, non-authoritative audit sink. DSN
// empty means no sink is wired — Runner.Audit stays nil.
type AuditConfig struct {
	// Driver is "sqlite", "postgres", or "" (disabled).
	Driver string `toml:"driver"`
	// DSN is a sqlite file path or a postgres connection string,
	// depending on Driver.
	DSN string `toml:"dsn"`
}

// TelemetryConfig governs the OTEL-backed Tracer. Endpoint
// empty leaves the telemetry package's default OTLP/HTTP behavior
// (configured from the standard OTEL_EXPORTER_OTLP_* env vars) untouched.
type TelemetryConfig struct {
	Enabled          bool   `toml:"enabled"`
	ServiceName      string `toml:"service_name"`
	ExporterEndpoint string `toml:"exporter_endpoint"`
}

// Default returns a Config with every field set to a usable default.
func Default() Config {
	return Config{
		Sandbox: SandboxConfig{
			FuelLimit:     0,
			YieldInterval: 1_000_000,
			Image:         "dflow/sandbox:latest",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dflow",
		},
	}
}

// Load reads config: defaults -> TOML file (if path exists) -> env vars.
// A missing or malformed file at path is not an error — Load falls back
// to defaults; the file is best-effort and the environment wins.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "dflow.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("DFLOW_FUEL_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Sandbox.FuelLimit = n
		}
	}
	if v := os.Getenv("DFLOW_YIELD_INTERVAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Sandbox.YieldInterval = n
		}
	}
	if v := os.Getenv("DFLOW_SANDBOX_IMAGE"); v != "" {
		cfg.Sandbox.Image = v
	}
	if v := os.Getenv("DFLOW_HTTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("DFLOW_AUDIT_DRIVER"); v != "" {
		cfg.Audit.Driver = v
	}
	if v := os.Getenv("DFLOW_AUDIT_DSN"); v != "" {
		cfg.Audit.DSN = v
	}
	if v := os.Getenv("DFLOW_TELEMETRY_ENABLED"); v == "true" || v == "1" {
		cfg.Telemetry.Enabled = true
	}
	if v := os.Getenv("DFLOW_TELEMETRY_SERVICE_NAME"); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.ExporterEndpoint = v
	}

	return cfg
}
