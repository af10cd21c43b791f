// Package tracker records heartbeats and operational metrics on a best-effort
// basis: write failures are logged and never reach the caller.
package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

// Well-known metric identities.
var (
	QueueLength = models.MetricIdentity{
		Group:       "alerts",
		Name:        "queueLength",
		Type:        models.MetricTypeGauge,
		Title:       "Alert internal queue length",
		Description: "Number of alerts waiting on the internal queue for processing",
	}
	Received = models.MetricIdentity{
		Group:       "alerts",
		Name:        "received",
		Type:        models.MetricTypeTimer,
		Title:       "Alert receive rate and latency",
		Description: "Time taken for alert to be received by the server",
	}
	Processed = models.MetricIdentity{
		Group:       "alerts",
		Name:        "processed",
		Type:        models.MetricTypeTimer,
		Title:       "Alert process rate and duration",
		Description: "Time taken to process the alert on the server",
	}
)

// Tracker wraps the heartbeat and metric repositories.
type Tracker struct {
	heartbeats storage.HeartbeatRepository
	metrics    storage.MetricRepository
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a tracker. A nil logger discards output.
func New(heartbeats storage.HeartbeatRepository, metrics storage.MetricRepository, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		heartbeats: heartbeats,
		metrics:    metrics,
		logger:     logger.Named("tracker"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UpsertHeartbeat stores hb, replacing any previous heartbeat of its origin.
func (t *Tracker) UpsertHeartbeat(ctx context.Context, hb *models.Heartbeat) {
	if hb.ReceiveTime.IsZero() {
		hb.ReceiveTime = t.now()
	}
	if hb.CreateTime.IsZero() {
		hb.CreateTime = hb.ReceiveTime
	}
	if err := t.heartbeats.Upsert(ctx, hb); err != nil {
		t.logger.Error("failed to store heartbeat", zap.String("origin", hb.Origin), zap.Error(err))
	}
}

// ListHeartbeats returns all heartbeats; on failure the error is logged and
// an empty slice returned.
func (t *Tracker) ListHeartbeats(ctx context.Context) []*models.Heartbeat {
	hbs, err := t.heartbeats.List(ctx)
	if err != nil {
		t.logger.Error("failed to list heartbeats", zap.Error(err))
		return []*models.Heartbeat{}
	}
	return hbs
}

// StaleHeartbeats returns the heartbeats whose origin has missed its timeout.
func (t *Tracker) StaleHeartbeats(ctx context.Context) []*models.Heartbeat {
	now := t.now()
	stale := []*models.Heartbeat{}
	for _, hb := range t.ListHeartbeats(ctx) {
		if hb.Stale(now) {
			stale = append(stale, hb)
		}
	}
	return stale
}

// SetGauge stores value for the gauge id.
func (t *Tracker) SetGauge(ctx context.Context, id models.MetricIdentity, value int64) {
	if err := t.metrics.SetGauge(ctx, id, value); err != nil {
		t.logger.Error("failed to set gauge", zap.String("group", id.Group), zap.String("name", id.Name), zap.Error(err))
	}
}

// IncrementTimer adds one observation to the timer id.
func (t *Tracker) IncrementTimer(ctx context.Context, id models.MetricIdentity, elapsed time.Duration) {
	if err := t.metrics.IncrementTimer(ctx, id, elapsed.Milliseconds()); err != nil {
		t.logger.Error("failed to increment timer", zap.String("group", id.Group), zap.String("name", id.Name), zap.Error(err))
	}
}

// ListMetrics returns all metrics; on failure the error is logged and an
// empty slice returned.
func (t *Tracker) ListMetrics(ctx context.Context) []*models.Metric {
	list, err := t.metrics.List(ctx)
	if err != nil {
		t.logger.Error("failed to list metrics", zap.Error(err))
		return []*models.Metric{}
	}
	return list
}

// RecordQueueLength sets the alerts/queueLength gauge.
func (t *Tracker) RecordQueueLength(ctx context.Context, length int) {
	t.SetGauge(ctx, QueueLength, int64(length))
}

// RecordLatency updates the alerts/received timer with receive-create and
// the alerts/processed timer with now-receive.
func (t *Tracker) RecordLatency(ctx context.Context, createTime, receiveTime time.Time) {
	t.IncrementTimer(ctx, Received, nonNegative(receiveTime.Sub(createTime)))
	t.IncrementTimer(ctx, Processed, nonNegative(t.now().Sub(receiveTime)))
}

// clocks on senders drift
func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
