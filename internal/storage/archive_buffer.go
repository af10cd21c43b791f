package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/models"
)

// ArchiveBuffer batches trimmed history entries for insertion into the
// archive. It flushes on either batch size threshold or time interval,
// whichever comes first. When the buffer reaches max capacity the oldest
// entries are dropped.
type ArchiveBuffer struct {
	repo          ArchiveRepository
	batchSize     int
	flushInterval time.Duration
	maxSize       int
	logger        *zap.Logger

	mu       sync.Mutex
	buffer   []*models.ArchivedHistory
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  atomic.Bool
	dropped  atomic.Int64
	flushed  atomic.Int64
	inserted atomic.Int64
}

// ArchiveBufferConfig holds ArchiveBuffer configuration.
type ArchiveBufferConfig struct {
	// BatchSize is the number of entries to trigger a flush.
	BatchSize int

	// FlushInterval is the time interval to trigger a flush.
	FlushInterval time.Duration

	// MaxSize is the maximum buffer size. When reached, oldest entries are dropped.
	MaxSize int
}

// NewArchiveBuffer creates a buffer in front of repo and starts its flush loop.
func NewArchiveBuffer(repo ArchiveRepository, config *ArchiveBufferConfig, logger *zap.Logger) *ArchiveBuffer {
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 50000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &ArchiveBuffer{
		repo:          repo,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxSize:       config.MaxSize,
		logger:        logger.Named("archive_buffer"),
		buffer:        make([]*models.ArchivedHistory, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	go b.flushLoop()
	return b
}

// Archive queues entries and satisfies the retention Archiver. The context
// is unused; entries are written asynchronously.
func (b *ArchiveBuffer) Archive(_ context.Context, entries []*models.ArchivedHistory) error {
	return b.AddBatch(entries)
}

// AddBatch adds entries to the buffer, flushing when the batch size is reached.
func (b *ArchiveBuffer) AddBatch(entries []*models.ArchivedHistory) error {
	if b.stopped.Load() || len(entries) == 0 {
		return nil
	}

	b.mu.Lock()

	newLen := len(b.buffer) + len(entries)
	if newLen > b.maxSize {
		toDrop := newLen - b.maxSize
		if toDrop >= len(b.buffer) {
			// Everything queued goes, plus the head of the new batch.
			b.drop(len(b.buffer))
			b.buffer = b.buffer[:0]
			keep := min(b.maxSize, len(entries))
			drop := len(entries) - keep
			b.drop(drop)
			entries = entries[drop:]
		} else {
			b.drop(toDrop)
			b.buffer = b.buffer[toDrop:]
		}
		b.logger.Warn("archive buffer overflow", zap.Int("dropped", toDrop))
	}

	b.buffer = append(b.buffer, entries...)
	pending := len(b.buffer)
	shouldFlush := pending >= b.batchSize
	b.mu.Unlock()

	metrics.BufferPending.Set(float64(pending))
	if shouldFlush {
		return b.Flush()
	}
	return nil
}

func (b *ArchiveBuffer) drop(n int) {
	if n <= 0 {
		return
	}
	b.dropped.Add(int64(n))
	metrics.BufferDroppedTotal.Add(float64(n))
}

// Flush writes the current buffer to the archive. On failure the entries
// are put back at the front of the buffer.
func (b *ArchiveBuffer) Flush() error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}

	toFlush := b.buffer
	b.buffer = make([]*models.ArchivedHistory, 0, b.batchSize)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.repo.InsertBatch(ctx, toFlush); err != nil {
		metrics.BufferFlushErrors.Inc()
		b.mu.Lock()
		b.buffer = append(toFlush, b.buffer...)
		if len(b.buffer) > b.maxSize {
			excess := len(b.buffer) - b.maxSize
			b.drop(excess)
			b.buffer = b.buffer[excess:]
		}
		metrics.BufferPending.Set(float64(len(b.buffer)))
		b.mu.Unlock()
		return err
	}

	b.flushed.Add(1)
	b.inserted.Add(int64(len(toFlush)))
	metrics.BufferFlushesTotal.Inc()
	metrics.BufferInsertedTotal.Add(float64(len(toFlush)))

	b.mu.Lock()
	metrics.BufferPending.Set(float64(len(b.buffer)))
	b.mu.Unlock()
	return nil
}

func (b *ArchiveBuffer) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.logger.Error("archive flush failed", zap.Error(err))
			}
		case <-b.stopCh:
			if err := b.Flush(); err != nil {
				b.logger.Error("final archive flush failed", zap.Error(err))
			}
			return
		}
	}
}

// Close stops the buffer and flushes remaining entries.
func (b *ArchiveBuffer) Close() error {
	if b.stopped.Swap(true) {
		return nil
	}
	close(b.stopCh)
	<-b.doneCh
	return nil
}

// Stats returns buffer statistics.
func (b *ArchiveBuffer) Stats() ArchiveBufferStats {
	b.mu.Lock()
	pending := len(b.buffer)
	b.mu.Unlock()

	return ArchiveBufferStats{
		Pending:  pending,
		Dropped:  b.dropped.Load(),
		Flushed:  b.flushed.Load(),
		Inserted: b.inserted.Load(),
	}
}

// ArchiveBufferStats contains buffer statistics.
type ArchiveBufferStats struct {
	// Pending is the number of entries waiting to be flushed.
	Pending int

	// Dropped is the total number of entries dropped due to backpressure.
	Dropped int64

	// Flushed is the total number of successful flush operations.
	Flushed int64

	// Inserted is the total number of entries successfully archived.
	Inserted int64
}
