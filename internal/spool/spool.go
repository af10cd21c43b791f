// Package spool ingests alert files dropped into a directory. Writers should
// create files under another name and rename them into place; only names
// matching the configured patterns are picked up.
package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/models"
)

// Handler receives the alerts decoded from one file.
type Handler func(ctx context.Context, alerts []*models.Alert) error

// Options configures a Watcher.
type Options struct {
	// Dir is the spool directory.
	Dir string
	// Patterns are the file name globs to ingest.
	Patterns []string
	// PollInterval is the rescan interval used when events are missed.
	PollInterval time.Duration
	// ProcessedDir receives handled files. Empty deletes them.
	ProcessedDir string
	// FailedDir receives files that could not be decoded or handled.
	FailedDir string
}

// DefaultOptions returns Options for dir with sensible defaults.
func DefaultOptions(dir string) *Options {
	return &Options{
		Dir:          dir,
		Patterns:     []string{"*.json", "*.jsonl"},
		PollInterval: 5 * time.Second,
		ProcessedDir: filepath.Join(dir, "processed"),
		FailedDir:    filepath.Join(dir, "failed"),
	}
}

// Watcher processes spool files as they appear.
type Watcher struct {
	opts    *Options
	handler Handler
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates the spool directories and a watcher for them.
func NewWatcher(opts *Options, handler Handler, logger *zap.Logger) (*Watcher, error) {
	if opts == nil || opts.Dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	def := DefaultOptions(opts.Dir)
	if len(opts.Patterns) == 0 {
		opts.Patterns = def.Patterns
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, dir := range []string{opts.Dir, opts.ProcessedDir, opts.FailedDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create spool directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		opts:    opts,
		handler: handler,
		watcher: watcher,
		logger:  logger.Named("spool"),
	}, nil
}

// Run processes existing files and then every new file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.watcher.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	w.logger.Info("watching spool directory", zap.String("dir", w.opts.Dir))

	w.ScanOnce(ctx)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.matches(event.Name) {
				w.processFile(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			// Fallback for events the platform dropped.
			w.ScanOnce(ctx)
		}
	}
}

// ScanOnce processes every matching file currently in the directory, oldest
// name first, and returns the number handled.
func (w *Watcher) ScanOnce(ctx context.Context) int {
	var files []string
	for _, pattern := range w.opts.Patterns {
		matches, err := filepath.Glob(filepath.Join(w.opts.Dir, pattern))
		if err != nil {
			w.logger.Error("bad spool pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	n := 0
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		if w.processFile(ctx, f) {
			n++
		}
	}
	return n
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}

func (w *Watcher) matches(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.opts.Dir) {
		return false
	}
	name := filepath.Base(path)
	for _, pattern := range w.opts.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// processFile reports whether path was handled. A file that vanished before
// it could be opened was handled by an earlier event.
func (w *Watcher) processFile(ctx context.Context, path string) bool {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		w.logger.Error("failed to open spool file", zap.String("file", path), zap.Error(err))
		return false
	}
	alerts, err := DecodeAlerts(f)
	f.Close()
	if err != nil {
		w.logger.Error("failed to decode spool file", zap.String("file", path), zap.Error(err))
		w.finish(path, w.opts.FailedDir, "failed")
		return true
	}

	if len(alerts) > 0 {
		if err := w.handler(ctx, alerts); err != nil {
			if ctx.Err() != nil {
				// Picked up again on the next start.
				return false
			}
			w.logger.Error("failed to ingest spool file",
				zap.String("file", path),
				zap.Int("alerts", len(alerts)),
				zap.Error(err),
			)
			w.finish(path, w.opts.FailedDir, "failed")
			return true
		}
	}

	w.logger.Debug("spool file ingested", zap.String("file", path), zap.Int("alerts", len(alerts)))
	w.finish(path, w.opts.ProcessedDir, "processed")
	return true
}

// finish moves path into dir, or removes it when dir is empty.
func (w *Watcher) finish(path, dir, result string) {
	metrics.SpoolFilesTotal.WithLabelValues(result).Inc()

	var err error
	if dir == "" {
		err = os.Remove(path)
	} else {
		err = os.Rename(path, filepath.Join(dir, filepath.Base(path)))
	}
	if err != nil && !os.IsNotExist(err) {
		w.logger.Error("failed to move spool file", zap.String("file", path), zap.Error(err))
	}
}
