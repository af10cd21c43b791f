package spool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

const twoAlerts = `{"environment":"Production","resource":"db01","event":"disk_full","severity":"major"}
{"environment":"Production","resource":"db02","event":"disk_full","severity":"minor"}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewWatcher_RequiresDir(t *testing.T) {
	if _, err := NewWatcher(&Options{}, nil, nil); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestWatcher_ScanOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", twoAlerts)
	writeFile(t, dir, "b.json", `[{"environment":"Dev","resource":"web01","event":"http_5xx","severity":"warning"}]`)
	writeFile(t, dir, "bad.json", `{"environment": `)
	writeFile(t, dir, "notes.txt", "ignored")

	var got []*models.Alert
	handler := func(_ context.Context, alerts []*models.Alert) error {
		got = append(got, alerts...)
		return nil
	}

	w, err := NewWatcher(DefaultOptions(dir), handler, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if n := w.ScanOnce(context.Background()); n != 3 {
		t.Errorf("ScanOnce() = %d, want 3", n)
	}
	if len(got) != 3 {
		t.Fatalf("handled %d alerts, want 3", len(got))
	}
	if got[0].Resource != "db01" || got[2].Resource != "web01" {
		t.Errorf("unexpected order: %s, %s", got[0].Resource, got[2].Resource)
	}

	for _, name := range []string{"a.jsonl", "b.json"} {
		if !exists(filepath.Join(dir, "processed", name)) {
			t.Errorf("%s not moved to processed", name)
		}
	}
	if !exists(filepath.Join(dir, "failed", "bad.json")) {
		t.Error("bad.json not moved to failed")
	}
	if !exists(filepath.Join(dir, "notes.txt")) {
		t.Error("notes.txt should be left alone")
	}

	if n := w.ScanOnce(context.Background()); n != 0 {
		t.Errorf("second ScanOnce() = %d, want 0", n)
	}
}

func TestWatcher_HandlerError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", twoAlerts)

	handler := func(context.Context, []*models.Alert) error {
		return errors.New("store unavailable")
	}

	w, err := NewWatcher(DefaultOptions(dir), handler, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	w.ScanOnce(context.Background())

	if !exists(filepath.Join(dir, "failed", "a.jsonl")) {
		t.Error("a.jsonl not moved to failed")
	}
}

func TestWatcher_NullAlertFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nulls.json", `[null]`)

	called := false
	handler := func(context.Context, []*models.Alert) error {
		called = true
		return nil
	}

	w, err := NewWatcher(DefaultOptions(dir), handler, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	w.ScanOnce(context.Background())

	if called {
		t.Error("handler should not see a file with null alerts")
	}
	if !exists(filepath.Join(dir, "failed", "nulls.json")) {
		t.Error("nulls.json not moved to failed")
	}
}

func TestWatcher_CanceledKeepsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jsonl", twoAlerts)

	ctx, cancel := context.WithCancel(context.Background())
	handler := func(ctx context.Context, _ []*models.Alert) error {
		cancel()
		return ctx.Err()
	}

	w, err := NewWatcher(DefaultOptions(dir), handler, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if n := w.ScanOnce(ctx); n != 0 {
		t.Errorf("ScanOnce() = %d, want 0", n)
	}
	if !exists(path) {
		t.Error("file should stay in the spool when ingest is interrupted")
	}
}

func TestWatcher_DeleteWhenNoProcessedDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jsonl", twoAlerts)

	opts := DefaultOptions(dir)
	opts.ProcessedDir = ""

	w, err := NewWatcher(opts, func(context.Context, []*models.Alert) error { return nil }, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	w.ScanOnce(context.Background())

	if exists(path) {
		t.Error("file should be removed")
	}
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "early.jsonl", twoAlerts)

	received := make(chan int, 10)
	handler := func(_ context.Context, alerts []*models.Alert) error {
		received <- len(alerts)
		return nil
	}

	opts := DefaultOptions(dir)
	opts.PollInterval = 50 * time.Millisecond

	w, err := NewWatcher(opts, handler, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor := func(want int) {
		t.Helper()
		select {
		case n := <-received:
			if n != want {
				t.Errorf("handled %d alerts, want %d", n, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for spool file")
		}
	}

	waitFor(2)

	// Rename into place so the watcher never sees a partial file.
	tmp := writeFile(t, t.TempDir(), "late.tmp", `{"environment":"Dev","resource":"web01","event":"http_5xx","severity":"warning"}`)
	if err := os.Rename(tmp, filepath.Join(dir, "late.json")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	waitFor(1)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
