package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

func setupTracker(t *testing.T) *Tracker {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "tracker.db"), zaptest.NewLogger(t))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	return New(store.Heartbeats(), store.Metrics(), zaptest.NewLogger(t))
}

type failingRepo struct{}

var errBroken = errors.New("store unavailable")

func (failingRepo) Upsert(ctx context.Context, hb *models.Heartbeat) error { return errBroken }
func (failingRepo) List(ctx context.Context) ([]*models.Heartbeat, error) { return nil, errBroken }

type failingMetrics struct{}

func (failingMetrics) SetGauge(ctx context.Context, id models.MetricIdentity, value int64) error {
	return errBroken
}
func (failingMetrics) IncrementTimer(ctx context.Context, id models.MetricIdentity, ms int64) error {
	return errBroken
}
func (failingMetrics) List(ctx context.Context) ([]*models.Metric, error) { return nil, errBroken }

func TestTracker_Heartbeats(t *testing.T) {
	tr := setupTracker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	tr.now = func() time.Time { return now }

	tr.UpsertHeartbeat(ctx, &models.Heartbeat{Origin: "monitor-1", Version: "1.0", Timeout: 60})
	tr.UpsertHeartbeat(ctx, &models.Heartbeat{Origin: "monitor-1", Version: "1.0", Timeout: 60})
	tr.UpsertHeartbeat(ctx, &models.Heartbeat{
		Origin:      "monitor-2",
		ReceiveTime: now.Add(-10 * time.Minute),
		Timeout:     60,
	})

	hbs := tr.ListHeartbeats(ctx)
	if len(hbs) != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", len(hbs))
	}
	if !hbs[0].ReceiveTime.Equal(now) || !hbs[0].CreateTime.Equal(now) {
		t.Errorf("expected times defaulted to now, got %+v", hbs[0])
	}

	stale := tr.StaleHeartbeats(ctx)
	if len(stale) != 1 || stale[0].Origin != "monitor-2" {
		t.Errorf("expected monitor-2 stale, got %v", stale)
	}
}

func TestTracker_Metrics(t *testing.T) {
	tr := setupTracker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	tr.now = func() time.Time { return now }

	tr.RecordQueueLength(ctx, 12)
	tr.RecordQueueLength(ctx, 4)

	create := now.Add(-3 * time.Second)
	receive := now.Add(-1 * time.Second)
	tr.RecordLatency(ctx, create, receive)
	tr.RecordLatency(ctx, create, receive)

	byName := map[string]*models.Metric{}
	for _, m := range tr.ListMetrics(ctx) {
		byName[m.Name] = m
	}

	if g := byName["queueLength"]; g == nil || g.Value != 4 {
		t.Errorf("unexpected queue gauge: %+v", g)
	}
	if r := byName["received"]; r == nil || r.Count != 2 || r.TotalTime != 4000 {
		t.Errorf("unexpected received timer: %+v", r)
	}
	if p := byName["processed"]; p == nil || p.Count != 2 || p.TotalTime != 2000 {
		t.Errorf("unexpected processed timer: %+v", p)
	}
}

func TestTracker_ClockSkew(t *testing.T) {
	tr := setupTracker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	tr.now = func() time.Time { return now }

	// Sender clock ahead of ours.
	tr.RecordLatency(ctx, now.Add(time.Minute), now)

	for _, m := range tr.ListMetrics(ctx) {
		if m.TotalTime != 0 {
			t.Errorf("expected zero latency for %s, got %d", m.Name, m.TotalTime)
		}
	}
}

func TestTracker_SwallowsErrors(t *testing.T) {
	tr := New(failingRepo{}, failingMetrics{}, zaptest.NewLogger(t))
	ctx := context.Background()

	tr.UpsertHeartbeat(ctx, &models.Heartbeat{Origin: "monitor-1"})
	tr.RecordQueueLength(ctx, 1)
	tr.RecordLatency(ctx, time.Now(), time.Now())

	if hbs := tr.ListHeartbeats(ctx); hbs == nil || len(hbs) != 0 {
		t.Errorf("expected empty heartbeat list, got %v", hbs)
	}
	if list := tr.ListMetrics(ctx); list == nil || len(list) != 0 {
		t.Errorf("expected empty metric list, got %v", list)
	}
}
