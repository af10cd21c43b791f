package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/alertdb/internal/ingest"
	"github.com/good-yellow-bee/alertdb/internal/retention"
	"github.com/good-yellow-bee/alertdb/internal/spool"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

// Config represents the alertdb configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retention RetentionConfig `yaml:"retention"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // database file (default: ./data/alertdb.db)
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // console, json or auto (default: console)
}

// IngestConfig contains ingest pipeline settings.
type IngestConfig struct {
	Concurrency  int           `yaml:"concurrency"`   // parallel alerts per batch (default: 8)
	SpoolDir     string        `yaml:"spool_dir"`     // directory watched by serve (default: ./data/spool)
	PollInterval time.Duration `yaml:"poll_interval"` // spool rescan interval (default: 5s)
}

// RetentionConfig contains history retention settings.
type RetentionConfig struct {
	MaxHistory     int           `yaml:"max_history"`      // entries kept per alert (default: 100)
	Interval       time.Duration `yaml:"interval"`         // time between runs (default: 10m)
	TrimsPerSecond float64       `yaml:"trims_per_second"` // alerts trimmed per second (default: 20)
}

// ArchiveConfig contains the ClickHouse history archive settings.
type ArchiveConfig struct {
	Enabled    bool                `yaml:"enabled"`
	ClickHouse ClickHouseConfig    `yaml:"clickhouse"`
	Buffer     ArchiveBufferConfig `yaml:"buffer"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"` // overridden by ALERTDB_CLICKHOUSE_PASSWORD
	Compression   bool     `yaml:"compression"`
	RetentionDays int      `yaml:"retention_days"`
}

// ArchiveBufferConfig contains archive write batching settings.
type ArchiveBufferConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxSize       int           `yaml:"max_size"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

// HeartbeatConfig controls the heartbeat serve records for itself.
type HeartbeatConfig struct {
	Origin   string        `yaml:"origin"`   // default: alertdb/<hostname>
	Interval time.Duration `yaml:"interval"` // default: 1m, negative disables
	Timeout  int           `yaml:"timeout"`  // seconds (default: 3 * interval)
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./data/alertdb.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 8
	}
	if c.Ingest.SpoolDir == "" {
		c.Ingest.SpoolDir = "./data/spool"
	}
	if c.Ingest.PollInterval <= 0 {
		c.Ingest.PollInterval = 5 * time.Second
	}

	def := retention.DefaultConfig()
	if c.Retention.MaxHistory <= 0 {
		c.Retention.MaxHistory = def.MaxHistory
	}
	if c.Retention.Interval <= 0 {
		c.Retention.Interval = def.Interval
	}
	if c.Retention.TrimsPerSecond == 0 {
		c.Retention.TrimsPerSecond = def.TrimsPerSecond
	}

	if len(c.Archive.ClickHouse.Addresses) == 0 {
		c.Archive.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.Archive.ClickHouse.Database == "" {
		c.Archive.ClickHouse.Database = "alertdb"
	}
	if c.Archive.ClickHouse.Username == "" {
		c.Archive.ClickHouse.Username = "default"
	}
	if c.Archive.ClickHouse.RetentionDays <= 0 {
		c.Archive.ClickHouse.RetentionDays = 90
	}
	if pw := os.Getenv("ALERTDB_CLICKHOUSE_PASSWORD"); pw != "" {
		c.Archive.ClickHouse.Password = pw
	}
	if c.Archive.Buffer.BatchSize <= 0 {
		c.Archive.Buffer.BatchSize = 500
	}
	if c.Archive.Buffer.FlushInterval <= 0 {
		c.Archive.Buffer.FlushInterval = 5 * time.Second
	}
	if c.Archive.Buffer.MaxSize <= 0 {
		c.Archive.Buffer.MaxSize = 50000
	}

	if c.Heartbeat.Origin == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		c.Heartbeat.Origin = "alertdb/" + host
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = time.Minute
	}
	if c.Heartbeat.Timeout <= 0 && c.Heartbeat.Interval > 0 {
		c.Heartbeat.Timeout = int(3 * c.Heartbeat.Interval / time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("log.format must be console, json or auto")
	}
	if c.Retention.TrimsPerSecond < 0 {
		return fmt.Errorf("retention.trims_per_second must not be negative")
	}
	if c.Archive.Enabled {
		for i, addr := range c.Archive.ClickHouse.Addresses {
			if addr == "" {
				return fmt.Errorf("archive.clickhouse.addresses[%d] is empty", i)
			}
		}
		if c.Archive.Buffer.BatchSize > c.Archive.Buffer.MaxSize {
			return fmt.Errorf("archive.buffer.batch_size must not exceed archive.buffer.max_size")
		}
	}
	return nil
}

// ProcessorConfig returns the ingest settings.
func (c *Config) ProcessorConfig() *ingest.Config {
	return &ingest.Config{Concurrency: c.Ingest.Concurrency}
}

// TrimmerConfig returns the retention settings.
func (c *Config) TrimmerConfig() retention.Config {
	return retention.Config{
		MaxHistory:     c.Retention.MaxHistory,
		Interval:       c.Retention.Interval,
		TrimsPerSecond: c.Retention.TrimsPerSecond,
	}
}

// SpoolOptions returns the spool watcher settings.
func (c *Config) SpoolOptions() *spool.Options {
	opts := spool.DefaultOptions(c.Ingest.SpoolDir)
	opts.PollInterval = c.Ingest.PollInterval
	return opts
}

// ClickHouseStorageConfig returns the archive connection settings.
func (c *Config) ClickHouseStorageConfig() *storage.ClickHouseConfig {
	ch := c.Archive.ClickHouse
	return &storage.ClickHouseConfig{
		Addresses:     ch.Addresses,
		Database:      ch.Database,
		Username:      ch.Username,
		Password:      ch.Password,
		Compression:   ch.Compression,
		RetentionDays: ch.RetentionDays,
	}
}

// ArchiveBufferStorageConfig returns the archive buffer settings.
func (c *Config) ArchiveBufferStorageConfig() *storage.ArchiveBufferConfig {
	b := c.Archive.Buffer
	return &storage.ArchiveBufferConfig{
		BatchSize:     b.BatchSize,
		FlushInterval: b.FlushInterval,
		MaxSize:       b.MaxSize,
	}
}
