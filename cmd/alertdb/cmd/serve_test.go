package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/alertdb/internal/ingest"
	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
	"github.com/good-yellow-bee/alertdb/internal/tracker"
)

func setupServeStore(t *testing.T) (*storage.SQLiteStorage, *tracker.Tracker) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "alertdb.db"), zaptest.NewLogger(t))
	if err := store.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store, tracker.New(store.Heartbeats(), store.Metrics(), zaptest.NewLogger(t))
}

func TestSpoolHandler(t *testing.T) {
	store, tr := setupServeStore(t)
	processor := ingest.NewProcessor(store.Alerts(), tr, &ingest.Config{Concurrency: 2}, zaptest.NewLogger(t))
	handle := spoolHandler(processor)
	ctx := context.Background()

	partial := []*models.Alert{
		models.NewAlert("Production", "db01", "disk_full", models.SeverityMajor),
		models.NewAlert("", "db02", "disk_full", models.SeverityMajor),
	}
	if err := handle(ctx, partial); err != nil {
		t.Errorf("partially valid file should be accepted, got %v", err)
	}

	invalid := []*models.Alert{
		models.NewAlert("Production", "", "disk_full", models.SeverityMajor),
	}
	if err := handle(ctx, invalid); err == nil {
		t.Error("expected error when no alert could be stored")
	}

	n, err := store.Alerts().Count(ctx, &storage.AlertFilter{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestRunSelfHeartbeat(t *testing.T) {
	_, tr := setupServeStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runSelfHeartbeat(ctx, tr, HeartbeatConfig{Origin: "alertdb/test", Interval: time.Hour, Timeout: 60})
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		hbs := tr.ListHeartbeats(context.Background())
		if len(hbs) == 1 {
			if hbs[0].Origin != "alertdb/test" || hbs[0].Timeout != 60 {
				t.Errorf("heartbeat = %+v", hbs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat was not recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runSelfHeartbeat did not stop")
	}
}
