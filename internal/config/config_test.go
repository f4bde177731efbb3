package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Database.Driver != DriverValkey {
		t.Errorf("expected driver %q, got %q", DriverValkey, cfg.Database.Driver)
	}
	if cfg.Ledger.DefaultQuota != 150 {
		t.Errorf("expected default quota 150, got %d", cfg.Ledger.DefaultQuota)
	}
	if cfg.Ledger.HoldTimeoutMinutes != 60 {
		t.Errorf("expected hold timeout 60, got %d", cfg.Ledger.HoldTimeoutMinutes)
	}
	if cfg.Generation.HoldCost != 1 {
		t.Errorf("expected hold cost 1, got %d", cfg.Generation.HoldCost)
	}
	if cfg.Storage.KeyPrefix != "tailorly:" {
		t.Errorf("expected key prefix tailorly:, got %q", cfg.Storage.KeyPrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port must be between 1 and 65535, got 0"},
		{"redis without addrs", func(c *Config) { c.Database.Addrs = nil },
			`database.addrs is required for driver "valkey"`},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres },
			`database.dsn is required for driver "postgres"`},
		{"memory needs nothing", func(c *Config) {
			c.Database.Driver = DriverMemory
			c.Database.Addrs = nil
		}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, `unknown database.driver "mongo"`},
		{"admin quota without email", func(c *Config) { c.Ledger.AdminQuota = 1000 },
			"ledger.admin_email is required when ledger.admin_quota is set"},
		{"temperature out of range", func(c *Config) { c.Generation.Temperature = 3 },
			"generation.temperature must be between 0 and 2, got 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("unexpected error:\ngot:  %v\nwant: %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TAILORLY_TEST_KEY", "sk-123")

	got := string(expandEnvVars([]byte("a: ${TAILORLY_TEST_KEY}\nb: ${TAILORLY_UNSET_VAR:-fallback}\nc: ${TAILORLY_UNSET_VAR}")))
	want := "a: sk-123\nb: fallback\nc: "
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o750); err != nil {
		t.Fatal(err)
	}
	yml := `
http:
  port: ${TAILORLY_TEST_PORT:-9090}
database:
  driver: memory
auth:
  api_keys: ["k1"]
  admin_api_keys: ["root"]
ledger:
  admin_email: boss@example.com
  admin_quota: 5000
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unit.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %q", cfg.Database.Driver)
	}
	if len(cfg.Auth.AdminAPIKeys) != 1 || cfg.Auth.AdminAPIKeys[0] != "root" {
		t.Errorf("unexpected admin keys %v", cfg.Auth.AdminAPIKeys)
	}
	if cfg.Ledger.AdminQuota != 5000 || cfg.Ledger.DefaultQuota != 150 {
		t.Errorf("unexpected ledger config %+v", cfg.Ledger)
	}
}
