package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "alertdb.yaml")

	configContent := `
database:
  path: "/var/lib/alertdb/alerts.db"

log:
  level: debug
  format: json

ingest:
  concurrency: 4

retention:
  max_history: 50
  interval: 1m
  trims_per_second: 5

archive:
  enabled: true
  clickhouse:
    addresses: ["ch1:9000", "ch2:9000"]
    database: "alerts"
  buffer:
    batch_size: 100
    flush_interval: 2s
    max_size: 1000

metrics:
  address: ":9100"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Database.Path != "/var/lib/alertdb/alerts.db" {
		t.Errorf("Database.Path = %v", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Ingest.Concurrency != 4 {
		t.Errorf("Ingest.Concurrency = %d, want 4", cfg.Ingest.Concurrency)
	}
	if cfg.Retention.MaxHistory != 50 {
		t.Errorf("Retention.MaxHistory = %d, want 50", cfg.Retention.MaxHistory)
	}
	if cfg.Retention.Interval != time.Minute {
		t.Errorf("Retention.Interval = %v, want 1m", cfg.Retention.Interval)
	}
	if len(cfg.Archive.ClickHouse.Addresses) != 2 {
		t.Errorf("len(Archive.ClickHouse.Addresses) = %d, want 2", len(cfg.Archive.ClickHouse.Addresses))
	}
	if cfg.Archive.ClickHouse.Username != "default" {
		t.Errorf("Archive.ClickHouse.Username = %q, want default", cfg.Archive.ClickHouse.Username)
	}
	if cfg.Archive.Buffer.FlushInterval != 2*time.Second {
		t.Errorf("Archive.Buffer.FlushInterval = %v, want 2s", cfg.Archive.Buffer.FlushInterval)
	}
	if cfg.Metrics.Address != ":9100" {
		t.Errorf("Metrics.Address = %q, want :9100", cfg.Metrics.Address)
	}

	tc := cfg.TrimmerConfig()
	if tc.MaxHistory != 50 || tc.TrimsPerSecond != 5 {
		t.Errorf("TrimmerConfig() = %+v", tc)
	}
	if cfg.ClickHouseStorageConfig().Database != "alerts" {
		t.Errorf("ClickHouseStorageConfig().Database = %q", cfg.ClickHouseStorageConfig().Database)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.Path != "./data/alertdb.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v, want info/console", cfg.Log)
	}
	if cfg.Ingest.Concurrency != 8 {
		t.Errorf("Ingest.Concurrency = %d, want 8", cfg.Ingest.Concurrency)
	}
	if cfg.Retention.MaxHistory != 100 {
		t.Errorf("Retention.MaxHistory = %d, want 100", cfg.Retention.MaxHistory)
	}
	if cfg.Archive.Enabled {
		t.Error("archive should be disabled by default")
	}
	if cfg.Archive.Buffer.BatchSize != 500 || cfg.Archive.Buffer.MaxSize != 50000 {
		t.Errorf("Archive.Buffer = %+v", cfg.Archive.Buffer)
	}
	if cfg.Ingest.SpoolDir != "./data/spool" || cfg.Ingest.PollInterval != 5*time.Second {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
	if cfg.Heartbeat.Interval != time.Minute || cfg.Heartbeat.Timeout != 180 {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if !strings.HasPrefix(cfg.Heartbeat.Origin, "alertdb/") {
		t.Errorf("Heartbeat.Origin = %q", cfg.Heartbeat.Origin)
	}
	if opts := cfg.SpoolOptions(); opts.FailedDir != filepath.Join("./data/spool", "failed") {
		t.Errorf("SpoolOptions().FailedDir = %q", opts.FailedDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative trim rate", func(c *Config) { c.Retention.TrimsPerSecond = -1 }},
		{"empty clickhouse address", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.ClickHouse.Addresses = []string{""}
		}},
		{"batch larger than buffer", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Buffer.BatchSize = 10
			c.Archive.Buffer.MaxSize = 5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv("ALERTDB_CLICKHOUSE_PASSWORD", "s3cret")

	configFile := filepath.Join(t.TempDir(), "alertdb.yaml")
	if err := os.WriteFile(configFile, []byte("archive:\n  clickhouse:\n    password: plain\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Archive.ClickHouse.Password != "s3cret" {
		t.Errorf("Password = %q, want value from environment", cfg.Archive.ClickHouse.Password)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "alertdb.yaml")
	if err := os.WriteFile(configFile, []byte("log:\n  level: chatty\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(configFile); err == nil {
		t.Error("expected error for invalid log level")
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
