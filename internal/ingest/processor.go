// Package ingest classifies incoming alerts and applies exactly one storage
// mutation per alert: a duplicate is recorded, a correlated state change
// replaces the tracked record, anything else creates a new record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
	"github.com/good-yellow-bee/alertdb/internal/tracker"
)

// Outcome is the classification an alert received.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeCorrelated Outcome = "correlated"
)

// Result is the stored record after processing one alert.
type Result struct {
	Outcome Outcome
	Alert   *models.Alert
	Err     error
}

// Config holds Processor settings.
type Config struct {
	// Concurrency bounds ProcessBatch fan-out.
	Concurrency int
}

// Processor runs the classification pipeline against an alert repository.
// Alerts for the same (environment, resource) are processed one at a time.
type Processor struct {
	alerts      storage.AlertRepository
	tracker     *tracker.Tracker
	logger      *zap.Logger
	concurrency int
	locks       *keyedMutex
}

// NewProcessor creates a processor. The tracker is optional.
func NewProcessor(alerts storage.AlertRepository, tr *tracker.Tracker, config *Config, logger *zap.Logger) *Processor {
	if config == nil {
		config = &Config{}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		alerts:      alerts,
		tracker:     tr,
		logger:      logger.Named("ingest"),
		concurrency: config.Concurrency,
		locks:       newKeyedMutex(),
	}
}

// Process classifies alert and applies the matching mutation.
func (p *Processor) Process(ctx context.Context, alert *models.Alert) (*Result, error) {
	start := time.Now()
	metrics.IngestInFlight.Inc()
	defer metrics.IngestInFlight.Dec()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	if alert == nil {
		metrics.IngestAlertsTotal.WithLabelValues("rejected").Inc()
		p.logger.Warn("rejected nil alert")
		return nil, fmt.Errorf("%w: nil alert", storage.ErrInvalidDocument)
	}

	prepare(alert)
	if err := alert.Validate(); err != nil {
		metrics.IngestAlertsTotal.WithLabelValues("rejected").Inc()
		p.logger.Warn("rejected invalid alert", zap.Error(err), zap.Stringer("key", alert.Key()))
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidDocument, err)
	}

	unlock := p.locks.lock(alert.Environment + "\x00" + alert.Resource)
	res, err := p.classifyAndApply(ctx, alert)
	unlock()

	if err != nil {
		metrics.IngestAlertsTotal.WithLabelValues("error").Inc()
		p.logger.Error("failed to process alert",
			zap.String("id", alert.ID),
			zap.Stringer("key", alert.Key()),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.IngestAlertsTotal.WithLabelValues(string(res.Outcome)).Inc()
	if p.tracker != nil {
		p.tracker.RecordLatency(ctx, alert.CreateTime, alert.ReceiveTime)
	}
	p.logger.Info("alert processed",
		zap.String("id", res.Alert.ID),
		zap.String("receive_id", alert.ID),
		zap.String("outcome", string(res.Outcome)),
		zap.String("severity", string(res.Alert.Severity)),
	)
	return res, nil
}

func (p *Processor) classifyAndApply(ctx context.Context, alert *models.Alert) (*Result, error) {
	dup, err := p.alerts.IsDuplicate(ctx, alert, alert.Severity)
	if err != nil {
		return nil, fmt.Errorf("classify alert: %w", err)
	}
	if dup {
		updated, err := p.alerts.RecordDuplicate(ctx, alert)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			return &Result{Outcome: OutcomeDuplicate, Alert: updated}, nil
		}
	}

	correlated, err := p.alerts.IsCorrelated(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("classify alert: %w", err)
	}
	if correlated {
		previous, err := p.alerts.CurrentSeverity(ctx, alert)
		if err == nil {
			trend := models.TrendIndication(previous, alert.Severity)
			updated, err := p.alerts.Correlate(ctx, alert, previous, trend)
			if err != nil {
				return nil, err
			}
			if updated != nil {
				return &Result{Outcome: OutcomeCorrelated, Alert: updated}, nil
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	// Either nothing matched or the match vanished since classification.
	created, err := p.alerts.Create(ctx, alert)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeCreated, Alert: created}, nil
}

// ProcessBatch processes alerts concurrently. Results are in input order; a
// failed alert has a nil Alert and its Err set. The returned error combines
// all per-alert failures.
func (p *Processor) ProcessBatch(ctx context.Context, alerts []*models.Alert) ([]*Result, error) {
	results := make([]*Result, len(alerts))
	if p.tracker != nil {
		p.tracker.RecordQueueLength(ctx, len(alerts))
		defer p.tracker.RecordQueueLength(ctx, 0)
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, alert := range alerts {
		i, alert := i, alert
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Err: err}
				return nil
			}
			res, err := p.Process(ctx, alert)
			if err != nil {
				results[i] = &Result{Err: err}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	var errs error
	for i, r := range results {
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("alert %d: %w", i, r.Err))
		}
	}
	return results, errs
}

// prepare fills the receive-side fields of a freshly received alert.
func prepare(alert *models.Alert) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.ReceiveTime.IsZero() {
		alert.ReceiveTime = time.Now().UTC()
	}
	if alert.CreateTime.IsZero() {
		alert.CreateTime = alert.ReceiveTime
	}
	if alert.Status == "" {
		alert.Status = models.StatusOpen
	}
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
