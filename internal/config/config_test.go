package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Sandbox.YieldInterval != 1_000_000 {
		t.Errorf("expected yield interval 1_000_000, got %d", cfg.Sandbox.YieldInterval)
	}
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("expected 30s http timeout, got %d", cfg.HTTP.TimeoutSeconds)
	}
	if cfg.Audit.Driver != "" {
		t.Errorf("expected audit disabled by default, got driver %q", cfg.Audit.Driver)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[sandbox]
fuel_limit = 500000
image = "dflow/custom:v1"

[audit]
driver = "sqlite"
dsn = "dflow.db"
`), 0644)

	cfg := Load(path)
	if cfg.Sandbox.FuelLimit != 500000 {
		t.Errorf("expected fuel_limit 500000, got %d", cfg.Sandbox.FuelLimit)
	}
	if cfg.Sandbox.Image != "dflow/custom:v1" {
		t.Errorf("expected custom image, got %s", cfg.Sandbox.Image)
	}
	if cfg.Audit.Driver != "sqlite" || cfg.Audit.DSN != "dflow.db" {
		t.Errorf("expected sqlite audit sink, got %+v", cfg.Audit)
	}
	// Defaults preserved for fields the file didn't set.
	if cfg.HTTP.TimeoutSeconds != 30 {
		t.Errorf("default http timeout should be preserved, got %d", cfg.HTTP.TimeoutSeconds)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DFLOW_FUEL_LIMIT", "42")
	t.Setenv("DFLOW_AUDIT_DRIVER", "postgres")
	t.Setenv("DFLOW_AUDIT_DSN", "postgres://example/db")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Sandbox.FuelLimit != 42 {
		t.Errorf("expected fuel limit 42, got %d", cfg.Sandbox.FuelLimit)
	}
	if cfg.Audit.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Audit.Driver)
	}
	if cfg.Audit.DSN != "postgres://example/db" {
		t.Errorf("expected dsn override, got %s", cfg.Audit.DSN)
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[sandbox]
fuel_limit = 100
`), 0644)

	t.Setenv("DFLOW_FUEL_LIMIT", "999")

	cfg := Load(path)
	if cfg.Sandbox.FuelLimit != 999 {
		t.Errorf("expected env override 999, got %d", cfg.Sandbox.FuelLimit)
	}
}
