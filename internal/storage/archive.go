package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// ArchiveStorage is the long-term store for history entries trimmed from
// live alerts.
type ArchiveStorage interface {
	// Open initializes the connection.
	Open() error
	// Close closes the connection.
	Close() error
	// Migrate creates the archive table if it doesn't exist.
	Migrate() error
	// Ping checks the connection health.
	Ping(ctx context.Context) error

	// History returns the archived history repository.
	History() ArchiveRepository
}

// ArchiveRepository stores and queries archived history entries.
type ArchiveRepository interface {
	// InsertBatch appends entries to the archive.
	InsertBatch(ctx context.Context, entries []*models.ArchivedHistory) error

	// Query returns archived entries matching the filter, newest first.
	Query(ctx context.Context, filter *ArchiveFilter) ([]*models.ArchivedHistory, error)

	// Count returns the number of archived entries matching the filter.
	Count(ctx context.Context, filter *ArchiveFilter) (int64, error)

	// DeleteBefore removes entries archived before the given time.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveFilter selects archived history entries.
type ArchiveFilter struct {
	AlertID     string
	Environment string
	Resource    string

	// Archive time range
	StartTime time.Time
	EndTime   time.Time

	// Pagination
	Limit  int
	Offset int
}
