package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

const backendClickHouse = "clickhouse"

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for archived history.
	RetentionDays int
}

// ClickHouseArchive implements ArchiveStorage for ClickHouse.
type ClickHouseArchive struct {
	config  *ClickHouseConfig
	db      *sql.DB
	history *clickhouseArchiveRepo
	logger  *zap.Logger
}

// NewClickHouseArchive creates a new ClickHouse archive.
func NewClickHouseArchive(config *ClickHouseConfig, logger *zap.Logger) *ClickHouseArchive {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ClickHouseArchive{config: config, logger: logger.Named("archive")}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseArchive) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	s.history = &clickhouseArchiveRepo{db: db}
	return nil
}

// Close closes the database connection.
func (s *ClickHouseArchive) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the archive table if it doesn't exist.
func (s *ClickHouseArchive) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS alert_history_archive (
			id UUID DEFAULT generateUUIDv4(),
			alert_id String,
			environment LowCardinality(String),
			resource String,
			kind LowCardinality(String),
			receive_id String,
			event String,
			severity LowCardinality(String),
			value String,
			status LowCardinality(String),
			text String,
			create_time DateTime64(3, 'UTC'),
			receive_time DateTime64(3, 'UTC'),
			update_time DateTime64(3, 'UTC'),
			archived_at DateTime64(3, 'UTC'),
			_date Date DEFAULT toDate(archived_at)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (environment, resource, alert_id, archived_at, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create archive table: %w", err)
	}

	indexes := []string{
		"ALTER TABLE alert_history_archive ADD INDEX IF NOT EXISTS idx_text text TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE alert_history_archive ADD INDEX IF NOT EXISTS idx_event event TYPE bloom_filter(0.01) GRANULARITY 4",
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			// Skipping indexes is harmless; older servers reject some types.
			s.logger.Warn("failed to create archive index", zap.Error(err))
		}
	}

	return nil
}

// Ping checks the connection health.
func (s *ClickHouseArchive) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// History returns the archived history repository.
func (s *ClickHouseArchive) History() ArchiveRepository {
	return s.history
}

type clickhouseArchiveRepo struct {
	db *sql.DB
}

// InsertBatch inserts archived entries using a prepared batch insert.
func (r *clickhouseArchiveRepo) InsertBatch(ctx context.Context, entries []*models.ArchivedHistory) (err error) {
	defer func(start time.Time) { observeBackend(backendClickHouse, "archive_insert", start, err) }(time.Now())

	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_history_archive (
			id, alert_id, environment, resource, kind, receive_id, event,
			severity, value, status, text, create_time, receive_time,
			update_time, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		h := e.Entry
		_, err := stmt.ExecContext(ctx,
			uuid.New().String(),
			e.AlertID,
			e.Environment,
			e.Resource,
			string(h.Kind),
			h.ID,
			h.Event,
			string(h.Severity),
			h.Value,
			string(h.Status),
			h.Text,
			h.CreateTime,
			h.ReceiveTime,
			h.UpdateTime,
			e.ArchivedAt,
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Query returns archived entries matching the filter, newest first.
func (r *clickhouseArchiveRepo) Query(ctx context.Context, filter *ArchiveFilter) (entries []*models.ArchivedHistory, err error) {
	defer func(start time.Time) { observeBackend(backendClickHouse, "archive_query", start, err) }(time.Now())

	query, args := buildArchiveQuery(filter, false)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	entries = []*models.ArchivedHistory{}
	for rows.Next() {
		e := &models.ArchivedHistory{}
		var kind, severity, status string
		err := rows.Scan(
			&e.AlertID, &e.Environment, &e.Resource, &kind, &e.Entry.ID,
			&e.Entry.Event, &severity, &e.Entry.Value, &status, &e.Entry.Text,
			&e.Entry.CreateTime, &e.Entry.ReceiveTime, &e.Entry.UpdateTime,
			&e.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Entry.Kind = models.HistoryKind(kind)
		e.Entry.Severity = models.Severity(severity)
		e.Entry.Status = models.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

// Count returns the number of archived entries matching the filter.
func (r *clickhouseArchiveRepo) Count(ctx context.Context, filter *ArchiveFilter) (count int64, err error) {
	defer func(start time.Time) { observeBackend(backendClickHouse, "archive_count", start, err) }(time.Now())

	query, args := buildArchiveQuery(filter, true)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// DeleteBefore removes entries archived before the given time.
func (r *clickhouseArchiveRepo) DeleteBefore(ctx context.Context, before time.Time) (count int64, err error) {
	defer func(start time.Time) { observeBackend(backendClickHouse, "archive_delete", start, err) }(time.Now())

	err = r.db.QueryRowContext(ctx,
		"SELECT count() FROM alert_history_archive WHERE archived_at < ?", before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	// ALTER TABLE DELETE is an asynchronous mutation.
	_, err = r.db.ExecContext(ctx, "ALTER TABLE alert_history_archive DELETE WHERE archived_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return count, nil
}

// buildArchiveQuery constructs the select or count query for filter.
func buildArchiveQuery(filter *ArchiveFilter, countOnly bool) (string, []any) {
	if filter == nil {
		filter = &ArchiveFilter{}
	}

	var sb strings.Builder
	var args []any

	if countOnly {
		sb.WriteString("SELECT count() FROM alert_history_archive")
	} else {
		sb.WriteString(`SELECT alert_id, environment, resource, kind, receive_id, event,
			severity, value, status, text, create_time, receive_time, update_time, archived_at
		FROM alert_history_archive`)
	}

	var conditions []string
	if filter.AlertID != "" {
		conditions = append(conditions, "alert_id = ?")
		args = append(args, filter.AlertID)
	}
	if filter.Environment != "" {
		conditions = append(conditions, "environment = ?")
		args = append(args, filter.Environment)
	}
	if filter.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, filter.Resource)
	}
	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "archived_at >= ?")
		args = append(args, filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "archived_at <= ?")
		args = append(args, filter.EndTime)
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if countOnly {
		return sb.String(), args
	}

	sb.WriteString(" ORDER BY archived_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if filter.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
	}

	return sb.String(), args
}
