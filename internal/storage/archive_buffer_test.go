package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// Unit tests (no ClickHouse required)

type mockArchiveRepo struct {
	mu               sync.Mutex
	insertBatchCalls int
	lastBatchSize    int
	insertBatchErr   error
	inserted         []*models.ArchivedHistory
}

func (m *mockArchiveRepo) InsertBatch(ctx context.Context, entries []*models.ArchivedHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertBatchCalls++
	m.lastBatchSize = len(entries)
	if m.insertBatchErr != nil {
		return m.insertBatchErr
	}
	m.inserted = append(m.inserted, entries...)
	return nil
}

func (m *mockArchiveRepo) Query(ctx context.Context, filter *ArchiveFilter) ([]*models.ArchivedHistory, error) {
	return nil, nil
}

func (m *mockArchiveRepo) Count(ctx context.Context, filter *ArchiveFilter) (int64, error) {
	return 0, nil
}

func (m *mockArchiveRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockArchiveRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBatchCalls
}

func archived(n int) []*models.ArchivedHistory {
	entries := make([]*models.ArchivedHistory, n)
	for i := range entries {
		entries[i] = &models.ArchivedHistory{
			AlertID:     fmt.Sprintf("alert-%d", i),
			Environment: "Production",
			Resource:    "db01",
			Entry: models.HistoryEntry{
				Kind:     models.HistoryKindEvent,
				Event:    "disk_full",
				Severity: models.SeverityMajor,
			},
			ArchivedAt: time.Now(),
		}
	}
	return entries
}

func TestArchiveBuffer_AddBatch(t *testing.T) {
	mock := &mockArchiveRepo{}

	config := &ArchiveBufferConfig{
		BatchSize:     3,
		FlushInterval: time.Hour, // Long interval so timer doesn't trigger
		MaxSize:       100,
	}

	buffer := NewArchiveBuffer(mock, config, zaptest.NewLogger(t))
	defer buffer.Close()

	if err := buffer.AddBatch(archived(2)); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if mock.calls() != 0 {
		t.Errorf("expected 0 insertBatch calls, got %d", mock.calls())
	}

	if err := buffer.AddBatch(archived(1)); err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("expected 1 insertBatch call, got %d", mock.calls())
	}
	if mock.lastBatchSize != 3 {
		t.Errorf("expected batch size 3, got %d", mock.lastBatchSize)
	}
}

func TestArchiveBuffer_Archive(t *testing.T) {
	mock := &mockArchiveRepo{}
	buffer := NewArchiveBuffer(mock, &ArchiveBufferConfig{BatchSize: 2, FlushInterval: time.Hour, MaxSize: 10}, nil)
	defer buffer.Close()

	if err := buffer.Archive(context.Background(), archived(2)); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if len(mock.inserted) != 2 {
		t.Errorf("expected 2 archived entries, got %d", len(mock.inserted))
	}
}

func TestArchiveBuffer_Flush(t *testing.T) {
	mock := &mockArchiveRepo{}

	config := &ArchiveBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}

	buffer := NewArchiveBuffer(mock, config, zaptest.NewLogger(t))
	defer buffer.Close()

	buffer.AddBatch(archived(1))

	if err := buffer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("expected 1 insertBatch call, got %d", mock.calls())
	}

	// Empty flush is a no-op.
	if err := buffer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("expected no further insertBatch calls, got %d", mock.calls())
	}
}

func TestArchiveBuffer_FlushErrorRequeues(t *testing.T) {
	mock := &mockArchiveRepo{insertBatchErr: errors.New("clickhouse down")}

	buffer := NewArchiveBuffer(mock, &ArchiveBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}, zaptest.NewLogger(t))
	defer buffer.Close()

	buffer.AddBatch(archived(2))
	if err := buffer.Flush(); err == nil {
		t.Fatal("expected flush error")
	}

	stats := buffer.Stats()
	if stats.Pending != 2 {
		t.Errorf("expected 2 pending entries after failed flush, got %d", stats.Pending)
	}
	if stats.Flushed != 0 {
		t.Errorf("expected 0 flushes, got %d", stats.Flushed)
	}

	mock.mu.Lock()
	mock.insertBatchErr = nil
	mock.mu.Unlock()

	if err := buffer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := buffer.Stats().Inserted; got != 2 {
		t.Errorf("expected 2 inserted, got %d", got)
	}
}

func TestArchiveBuffer_Backpressure(t *testing.T) {
	mock := &mockArchiveRepo{}

	config := &ArchiveBufferConfig{
		BatchSize:     10,
		FlushInterval: time.Hour,
		MaxSize:       5, // Small max size to test backpressure
	}

	buffer := NewArchiveBuffer(mock, config, zaptest.NewLogger(t))
	defer buffer.Close()

	buffer.AddBatch(archived(8))

	stats := buffer.Stats()
	if stats.Pending != 5 {
		t.Errorf("expected 5 pending entries, got %d", stats.Pending)
	}
	if stats.Dropped != 3 {
		t.Errorf("expected 3 dropped entries, got %d", stats.Dropped)
	}

	// Oldest queued entries go first.
	buffer.AddBatch(archived(2))
	stats = buffer.Stats()
	if stats.Pending != 5 {
		t.Errorf("expected 5 pending entries, got %d", stats.Pending)
	}
	if stats.Dropped != 5 {
		t.Errorf("expected 5 dropped entries, got %d", stats.Dropped)
	}
}

func TestArchiveBuffer_CloseFlushes(t *testing.T) {
	mock := &mockArchiveRepo{}
	buffer := NewArchiveBuffer(mock, &ArchiveBufferConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxSize:       100,
	}, zaptest.NewLogger(t))

	buffer.AddBatch(archived(4))
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mock.calls() != 1 {
		t.Errorf("expected final flush on close, got %d calls", mock.calls())
	}

	// Closed buffers ignore new entries; a second Close is a no-op.
	buffer.AddBatch(archived(1))
	if buffer.Stats().Pending != 0 {
		t.Errorf("expected no pending entries after close, got %d", buffer.Stats().Pending)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestBuildArchiveQuery(t *testing.T) {
	query, args := buildArchiveQuery(&ArchiveFilter{
		AlertID:     "a1",
		Environment: "Production",
		StartTime:   time.Now().Add(-time.Hour),
		Limit:       10,
		Offset:      20,
	}, false)

	for _, want := range []string{
		"alert_id = ?", "environment = ?", "archived_at >= ?",
		"ORDER BY archived_at DESC", "LIMIT 10", "OFFSET 20",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}

	count, args := buildArchiveQuery(nil, true)
	if !strings.HasPrefix(count, "SELECT count()") || strings.Contains(count, "WHERE") {
		t.Errorf("unexpected count query: %s", count)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %d", len(args))
	}
}
