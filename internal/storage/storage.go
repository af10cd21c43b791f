// Package storage provides the alert store: classification queries, atomic
// alert mutations, read-side aggregation and the heartbeat/metric records.
package storage

import (
	"context"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Alerts() AlertRepository
	Heartbeats() HeartbeatRepository
	Metrics() MetricRepository
}

// AlertRepository is the classification, mutation and query surface for alerts.
//
// Lookups and conditional updates that match nothing return a nil alert and a
// nil error.
type AlertRepository interface {
	// Classification
	IsDuplicate(ctx context.Context, alert *models.Alert, severity models.Severity) (bool, error)
	IsCorrelated(ctx context.Context, alert *models.Alert) (bool, error)
	CurrentSeverity(ctx context.Context, alert *models.Alert) (models.Severity, error)

	// Mutation
	Create(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	RecordDuplicate(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	Correlate(ctx context.Context, alert *models.Alert, previous models.Severity, trend models.Trend) (*models.Alert, error)
	SetStatus(ctx context.Context, sel Selector, status models.Status, text string) (*models.Alert, error)
	Delete(ctx context.Context, idPrefix string) (int64, error)
	Tag(ctx context.Context, idPrefix, tag string) (int64, error)
	DeleteResource(ctx context.Context, resourcePrefix string) (int64, error)

	// Query
	GetByID(ctx context.Context, idOrPrefix string) (*models.Alert, error)
	GetByKey(ctx context.Context, key models.AlertKey, severity models.Severity) (*models.Alert, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Alert, error)
	Count(ctx context.Context, filter *AlertFilter) (int64, error)
	AggregateCounts(ctx context.Context, filter *AlertFilter) (*Counts, error)
	ListResources(ctx context.Context, opts ListOptions) ([]*models.Resource, error)

	// History retention
	ListOverHistory(ctx context.Context, maxEntries int) ([]string, error)
	TrimHistory(ctx context.Context, alertID string, keep int) ([]*models.ArchivedHistory, error)
}

// HeartbeatRepository stores one liveness record per origin.
type HeartbeatRepository interface {
	Upsert(ctx context.Context, hb *models.Heartbeat) error
	List(ctx context.Context) ([]*models.Heartbeat, error)
}

// MetricRepository stores gauges and timers.
type MetricRepository interface {
	SetGauge(ctx context.Context, id models.MetricIdentity, value int64) error
	IncrementTimer(ctx context.Context, id models.MetricIdentity, elapsedMillis int64) error
	List(ctx context.Context) ([]*models.Metric, error)
}

// Selector addresses an alert either by id prefix or by correlation key.
// IDPrefix wins when both are set.
type Selector struct {
	IDPrefix string
	Key      models.AlertKey
}

// ByID selects alerts whose id or last-receive id starts with prefix.
func ByID(prefix string) Selector {
	return Selector{IDPrefix: prefix}
}

// ByKey selects the alert correlated with key.
func ByKey(key models.AlertKey) Selector {
	return Selector{Key: key}
}
