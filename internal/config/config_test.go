package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-farm
connection:
  ws_url: wss://example.test/ws
  heartbeat_interval: 15s
farm:
  processes: 4
  shuffle_accounts: true
store:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: farm_db
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-farm" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-farm")
	}
	if cfg.Connection.WSURL != "wss://example.test/ws" {
		t.Errorf("Connection.WSURL = %q, want %q", cfg.Connection.WSURL, "wss://example.test/ws")
	}
	if cfg.Connection.HeartbeatInterval != 15*time.Second {
		t.Errorf("Connection.HeartbeatInterval = %v, want 15s", cfg.Connection.HeartbeatInterval)
	}
	if cfg.Farm.Processes != 4 || !cfg.Farm.ShuffleAccounts {
		t.Errorf("Farm = %+v, want processes=4 shuffle=true", cfg.Farm)
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_REFRESH_TOKEN", "rt-1")

	yaml := `
instance:
  id: test-farm
store:
  driver: postgres
  postgres:
    host: localhost
    name: farm_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
auth_refresh:
  url: https://auth.example.test/refresh
  refresh_token: ${TEST_REFRESH_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Postgres.Password != "secret123" {
		t.Errorf("Store.Postgres.Password = %q, want %q", cfg.Store.Postgres.Password, "secret123")
	}
	if cfg.AuthRefresh.RefreshToken != "rt-1" {
		t.Errorf("AuthRefresh.RefreshToken = %q, want %q", cfg.AuthRefresh.RefreshToken, "rt-1")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: test-farm\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Connection.WSURL != DefaultWSURL {
		t.Errorf("Connection.WSURL = %q, want default %q", cfg.Connection.WSURL, DefaultWSURL)
	}
	if cfg.Connection.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("Connection.AuthTimeout = %v, want default %v", cfg.Connection.AuthTimeout, DefaultAuthTimeout)
	}
	if cfg.Connection.MaxErrors != DefaultMaxErrors {
		t.Errorf("Connection.MaxErrors = %d, want default %d", cfg.Connection.MaxErrors, DefaultMaxErrors)
	}
	if !cfg.Connection.SkipTLSVerify() {
		t.Error("SkipTLSVerify() = false, want default true")
	}
	if !cfg.Connection.CountsCommonErrors() {
		t.Error("CountsCommonErrors() = false, want default true")
	}
	if cfg.Farm.MonitorInterval != DefaultMonitorInterval {
		t.Errorf("Farm.MonitorInterval = %v, want default %v", cfg.Farm.MonitorInterval, DefaultMonitorInterval)
	}
	if cfg.Store.Driver != DefaultStoreDriver {
		t.Errorf("Store.Driver = %q, want default %q", cfg.Store.Driver, DefaultStoreDriver)
	}
	if cfg.Store.Postgres.Port != DefaultDBPort {
		t.Errorf("Store.Postgres.Port = %d, want default %d", cfg.Store.Postgres.Port, DefaultDBPort)
	}
	if cfg.Counter.Backend != DefaultCounterBackend {
		t.Errorf("Counter.Backend = %q, want default %q", cfg.Counter.Backend, DefaultCounterBackend)
	}
	if cfg.Metrics.Port != 0 {
		t.Errorf("Metrics.Port = %d, want 0 (disabled)", cfg.Metrics.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInitialDelayFloors(t *testing.T) {
	yaml := `
instance:
  id: test-farm
farm:
  initial_delay_min: 5s
  initial_delay_max: 90s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Farm.InitialDelayMin != MinInitialDelayMin {
		t.Errorf("InitialDelayMin = %v, want floor %v", cfg.Farm.InitialDelayMin, MinInitialDelayMin)
	}
	if cfg.Farm.InitialDelayMax != 90*time.Second {
		t.Errorf("InitialDelayMax = %v, want 90s", cfg.Farm.InitialDelayMax)
	}
	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "initial_delay_min") {
		t.Errorf("Warnings = %v, want one initial_delay_min warning", cfg.Warnings)
	}
}

func TestExplicitFalseFlags(t *testing.T) {
	yaml := `
instance:
  id: test-farm
connection:
  insecure_skip_verify: false
  count_common_errors: false
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Connection.SkipTLSVerify() {
		t.Error("SkipTLSVerify() = true, want false")
	}
	if cfg.Connection.CountsCommonErrors() {
		t.Error("CountsCommonErrors() = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FarmConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *FarmConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *FarmConfig) { c.Logging.Level = "trace" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "zero max errors",
			mutate:  func(c *FarmConfig) { c.Connection.MaxErrors = 0 },
			wantErr: "connection.max_errors must be >= 1",
		},
		{
			name: "restart delay inverted",
			mutate: func(c *FarmConfig) {
				c.Connection.RestartDelayMin = 10 * time.Second
				c.Connection.RestartDelayMax = 5 * time.Second
			},
			wantErr: "connection.restart_delay_min (10s) cannot exceed restart_delay_max (5s)",
		},
		{
			name:    "negative processes",
			mutate:  func(c *FarmConfig) { c.Farm.Processes = -1 },
			wantErr: "farm.processes must be >= 0",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *FarmConfig) { c.Store.Driver = "mysql" },
			wantErr: `store.driver must be postgres or sqlite, got "mysql"`,
		},
		{
			name:    "missing postgres host",
			mutate:  func(c *FarmConfig) { c.Store.Driver = "postgres" },
			wantErr: "store.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *FarmConfig) {
				c.Store.Driver = "postgres"
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "unknown counter backend",
			mutate:  func(c *FarmConfig) { c.Counter.Backend = "shm" },
			wantErr: `counter.backend must be mmap or redis, got "shm"`,
		},
		{
			name: "non-positive refresh interval",
			mutate: func(c *FarmConfig) {
				c.AuthRefresh.URL = "https://auth.example.com/refresh"
				c.AuthRefresh.Interval = -time.Second
			},
			wantErr: "auth_refresh.interval must be > 0, got -1s",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *FarmConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 0 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(c *FarmConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &FarmConfig{Instance: InstanceConfig{ID: "test"}}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestReadLines(t *testing.T) {
	path := writeTempFile(t, "  0xabc  \n\n# comment\n0xdef\n")

	lines, err := ReadLines(path, false)
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "0xabc" || lines[1] != "0xdef" {
		t.Errorf("lines = %q, want [0xabc 0xdef]", lines)
	}

	empty := writeTempFile(t, "\n# nothing\n")
	if _, err := ReadLines(empty, false); err == nil {
		t.Error("expected error for empty file")
	}
	if lines, err := ReadLines(empty, true); err != nil || len(lines) != 0 {
		t.Errorf("ReadLines(allowEmpty) = %v, %v", lines, err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
