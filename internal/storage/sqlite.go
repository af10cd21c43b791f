package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path   string
	logger *zap.Logger
	db     *sql.DB

	alerts     *sqliteAlertRepo
	heartbeats *sqliteHeartbeatRepo
	metrics    *sqliteMetricRepo
}

// NewSQLiteStorage creates a new SQLite storage. A nil logger discards output.
func NewSQLiteStorage(path string, logger *zap.Logger) *SQLiteStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStorage{
		path:   path,
		logger: logger.Named("storage"),
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	// Pragmas are applied per connection by the driver; immediate transactions
	// take the write lock up front so find-and-modify never upgrades mid-way.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db

	// Initialize repositories
	s.alerts = &sqliteAlertRepo{db: db, logger: s.logger.Named("alerts")}
	s.heartbeats = &sqliteHeartbeatRepo{db: db}
	s.metrics = &sqliteMetricRepo{db: db}

	s.logger.Info("database opened", zap.String("path", s.path))
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// Heartbeats returns the heartbeat repository.
func (s *SQLiteStorage) Heartbeats() HeartbeatRepository {
	return s.heartbeats
}

// Metrics returns the metric repository.
func (s *SQLiteStorage) Metrics() MetricRepository {
	return s.metrics
}
