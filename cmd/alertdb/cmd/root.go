// Package cmd contains the CLI commands for alertdb.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/alertdb/internal/storage"
)

var (
	// Used for flags
	configFile string
	dbPath     string
	verbose    bool
	output     string

	cfg    *Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alertdb",
	Short: "alertdb - alert store with de-duplication and correlation",
	Long: `alertdb stores monitoring alerts in a local SQLite database.

Incoming alerts are classified against the stored set: a repeat of the same
(environment, resource, event, severity) is recorded as a duplicate, a
state change of a tracked problem is correlated into the existing record,
and anything else creates a new alert.

Examples:
  # Create the schema
  alertdb migrate --db ./alerts.db

  # Ingest one alert from flags
  alertdb ingest --environment Production --resource db01 --event disk_full --severity major

  # Ingest a JSON array or JSON lines from stdin
  cat alerts.json | alertdb ingest

  # List open critical alerts
  alertdb list --status open --severity critical`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, yaml)")
}

// setup loads the configuration and builds the logger.
func setup() error {
	if configFile != "" {
		loaded, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	switch output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	l, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// openStore opens the configured database. With migrate set the schema is
// created or upgraded first and a missing database file is created.
func openStore(migrate bool) (*storage.SQLiteStorage, error) {
	path := cfg.Database.Path
	if migrate {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s (run alertdb migrate)", path)
	}

	store := storage.NewSQLiteStorage(path, logger)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if migrate {
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return store, nil
}

// printStructured writes v in the json or yaml output format. It reports
// false for table output so the caller renders its own table.
func printStructured(w io.Writer, v any) (bool, error) {
	switch output {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		fmt.Fprintln(w, string(data))
		return true, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}
