package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Canonical alert records; times are unix nanoseconds
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				last_receive_id TEXT NOT NULL,
				environment TEXT NOT NULL CHECK (environment <> ''),
				resource TEXT NOT NULL CHECK (resource <> ''),
				event TEXT NOT NULL CHECK (event <> ''),
				correlated_events TEXT NOT NULL DEFAULT '[]' CHECK (json_valid(correlated_events)),
				severity TEXT NOT NULL,
				previous_severity TEXT NOT NULL DEFAULT 'unknown',
				trend_indication TEXT NOT NULL DEFAULT 'noChange',
				status TEXT NOT NULL DEFAULT 'open',
				repeat INTEGER NOT NULL DEFAULT 0,
				duplicate_count INTEGER NOT NULL DEFAULT 0 CHECK (duplicate_count >= 0),
				alert_group TEXT NOT NULL DEFAULT '',
				value TEXT NOT NULL DEFAULT '',
				service TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '{}' CHECK (json_valid(tags)),
				origin TEXT NOT NULL DEFAULT '',
				threshold_info TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				raw_data TEXT NOT NULL DEFAULT '',
				more_info TEXT NOT NULL DEFAULT '',
				graph_urls TEXT NOT NULL DEFAULT '[]' CHECK (json_valid(graph_urls)),
				event_type TEXT NOT NULL DEFAULT '',
				create_time INTEGER,
				receive_time INTEGER,
				last_receive_time INTEGER,
				expire_time INTEGER,
				timeout INTEGER NOT NULL DEFAULT 0 CHECK (timeout >= 0)
			);

			-- Append-only history snapshots
			CREATE TABLE IF NOT EXISTS alert_history (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				alert_id TEXT NOT NULL,
				kind TEXT NOT NULL CHECK (kind IN ('event', 'status')),
				receive_id TEXT NOT NULL DEFAULT '',
				event TEXT NOT NULL DEFAULT '',
				severity TEXT NOT NULL DEFAULT '',
				value TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				text TEXT NOT NULL DEFAULT '',
				create_time INTEGER,
				receive_time INTEGER,
				update_time INTEGER,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- One liveness record per origin
			CREATE TABLE IF NOT EXISTS heartbeats (
				origin TEXT PRIMARY KEY,
				version TEXT NOT NULL DEFAULT '',
				create_time INTEGER,
				receive_time INTEGER,
				timeout INTEGER NOT NULL DEFAULT 0
			);

			-- Gauges and timers
			CREATE TABLE IF NOT EXISTS metrics (
				grp TEXT NOT NULL,
				name TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('gauge', 'timer')),
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				value INTEGER NOT NULL DEFAULT 0,
				count INTEGER NOT NULL DEFAULT 0,
				total_time INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (grp, name, type, title, description)
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(environment, resource, event, severity);
			CREATE INDEX IF NOT EXISTS idx_alerts_status_lrt ON alerts(status, last_receive_time);
			CREATE INDEX IF NOT EXISTS idx_alerts_status_lrt_env ON alerts(status, last_receive_time, environment);
			CREATE INDEX IF NOT EXISTS idx_alerts_status_service ON alerts(status, service);
			CREATE INDEX IF NOT EXISTS idx_alerts_status_env ON alerts(status, environment);
			CREATE INDEX IF NOT EXISTS idx_alerts_status_expire ON alerts(status, expire_time);
			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
			CREATE INDEX IF NOT EXISTS idx_alerts_last_receive_id ON alerts(last_receive_id);
			CREATE INDEX IF NOT EXISTS idx_alert_history_alert ON alert_history(alert_id, seq);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
