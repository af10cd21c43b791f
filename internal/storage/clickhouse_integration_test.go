//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/good-yellow-bee/alertdb/internal/models"
)

// Integration tests require running ClickHouse.
// Run with: go test -tags=integration ./internal/storage/...

func setupClickHouseTest(t *testing.T) (*ClickHouseArchive, func()) {
	t.Helper()

	config := &ClickHouseConfig{
		Addresses:     []string{"localhost:9000"},
		Database:      "alertdb_test",
		Username:      "default",
		Password:      "",
		MaxOpenConns:  2,
		MaxIdleConns:  2,
		DialTimeout:   5 * time.Second,
		Compression:   true,
		RetentionDays: 1,
	}

	archive := NewClickHouseArchive(config, zaptest.NewLogger(t))
	if err := archive.Open(); err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}

	if err := archive.Migrate(); err != nil {
		archive.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		archive.db.Exec("TRUNCATE TABLE alert_history_archive")
		archive.Close()
	}

	return archive, cleanup
}

func archivedEntry(alertID, env string, at time.Time) *models.ArchivedHistory {
	return &models.ArchivedHistory{
		AlertID:     alertID,
		Environment: env,
		Resource:    "db01",
		Entry: models.HistoryEntry{
			Kind:        models.HistoryKindEvent,
			ID:          alertID,
			Event:       "disk_full",
			Severity:    models.SeverityMajor,
			Value:       "95%",
			CreateTime:  at,
			ReceiveTime: at,
			Text:        "disk nearly full",
		},
		ArchivedAt: at,
	}
}

func TestClickHouseArchive_InsertBatch_Integration(t *testing.T) {
	archive, cleanup := setupClickHouseTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	err := archive.History().InsertBatch(ctx, []*models.ArchivedHistory{
		archivedEntry("a1", "Production", now),
	})
	if err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	entries, err := archive.History().Query(ctx, &ArchiveFilter{AlertID: "a1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Entry.Severity != models.SeverityMajor || entries[0].Entry.Event != "disk_full" {
		t.Errorf("unexpected entry: %+v", entries[0].Entry)
	}
}

func TestClickHouseArchive_Count_Integration(t *testing.T) {
	archive, cleanup := setupClickHouseTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	archive.History().InsertBatch(ctx, []*models.ArchivedHistory{
		archivedEntry("a1", "Production", now),
		archivedEntry("a1", "Production", now),
		archivedEntry("a2", "Development", now),
	})

	count, err := archive.History().Count(ctx, &ArchiveFilter{Environment: "Production"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestClickHouseArchive_DeleteBefore_Integration(t *testing.T) {
	archive, cleanup := setupClickHouseTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	archive.History().InsertBatch(ctx, []*models.ArchivedHistory{
		archivedEntry("old", "Production", now.Add(-48*time.Hour)),
		archivedEntry("new", "Production", now),
	})

	deleted, err := archive.History().DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}
