// Package retention caps per-alert history and hands trimmed entries to an
// archive.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

// Archiver receives history entries removed from the store.
type Archiver interface {
	Archive(ctx context.Context, entries []*models.ArchivedHistory) error
}

// Config configures the trimmer.
type Config struct {
	MaxHistory     int           // Entries kept per alert (default: 100)
	Interval       time.Duration // Time between runs (default: 10m)
	TrimsPerSecond float64       // Alerts trimmed per second, 0 for unlimited (default: 20)
}

// DefaultConfig returns default retention configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistory:     100,
		Interval:       10 * time.Minute,
		TrimsPerSecond: 20,
	}
}

// Report summarizes one retention run.
type Report struct {
	Alerts   int `json:"alerts"`
	Trimmed  int `json:"trimmed"`
	Archived int `json:"archived"`
}

// Trimmer periodically trims alert history down to MaxHistory entries.
type Trimmer struct {
	config   Config
	alerts   storage.AlertRepository
	archiver Archiver
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewTrimmer creates a trimmer. A nil archiver discards trimmed entries.
func NewTrimmer(alerts storage.AlertRepository, archiver Archiver, config Config, logger *zap.Logger) *Trimmer {
	def := DefaultConfig()
	if config.MaxHistory <= 0 {
		config.MaxHistory = def.MaxHistory
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	limit := rate.Inf
	if config.TrimsPerSecond > 0 {
		limit = rate.Limit(config.TrimsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trimmer{
		config:   config,
		alerts:   alerts,
		archiver: archiver,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("retention"),
	}
}

// RunOnce trims every alert over the history cap.
func (t *Trimmer) RunOnce(ctx context.Context) (report Report, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RetentionRunsTotal.WithLabelValues(result).Inc()
	}()

	ids, err := t.alerts.ListOverHistory(ctx, t.config.MaxHistory)
	if err != nil {
		return report, fmt.Errorf("list alerts over history cap: %w", err)
	}

	for _, id := range ids {
		if err := t.limiter.Wait(ctx); err != nil {
			return report, err
		}

		trimmed, err := t.alerts.TrimHistory(ctx, id, t.config.MaxHistory)
		if err != nil {
			return report, fmt.Errorf("trim alert %s: %w", id, err)
		}
		report.Alerts++
		report.Trimmed += len(trimmed)
		metrics.RetentionTrimmedTotal.Add(float64(len(trimmed)))

		if t.archiver == nil || len(trimmed) == 0 {
			continue
		}
		if err := t.archiver.Archive(ctx, trimmed); err != nil {
			// The entries are already gone from the store.
			t.logger.Error("failed to archive trimmed history",
				zap.String("alert_id", id),
				zap.Int("entries", len(trimmed)),
				zap.Error(err),
			)
			continue
		}
		report.Archived += len(trimmed)
	}

	if report.Alerts > 0 {
		t.logger.Info("history trimmed",
			zap.Int("alerts", report.Alerts),
			zap.Int("trimmed", report.Trimmed),
			zap.Int("archived", report.Archived),
		)
	}
	return report, nil
}

// Run trims on every interval until ctx is done.
func (t *Trimmer) Run(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	t.logger.Info("retention started",
		zap.Duration("interval", t.config.Interval),
		zap.Int("max_history", t.config.MaxHistory),
	)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("retention stopped")
			return
		case <-ticker.C:
			if _, err := t.RunOnce(ctx); err != nil && ctx.Err() == nil {
				t.logger.Error("retention run failed", zap.Error(err))
			}
		}
	}
}
