package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/alertdb/internal/health"
	"github.com/good-yellow-bee/alertdb/internal/ingest"
	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/retention"
	"github.com/good-yellow-bee/alertdb/internal/spool"
	"github.com/good-yellow-bee/alertdb/internal/storage"
	"github.com/good-yellow-bee/alertdb/internal/tracker"
	"github.com/good-yellow-bee/alertdb/pkg/config"
)

var serveSpoolDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest spool, retention and metrics in one process",
	Long: `Run alertdb as a long-lived service.

Alert files renamed into ingest.spool_dir are classified and stored, then
moved to processed/ or failed/. History is trimmed every retention.interval,
the service records its own heartbeat, and Prometheus metrics plus health
probes are served on metrics.address when set.

Example:
  alertdb serve -c /etc/alertdb/alertdb.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSpoolDir, "spool-dir", "", "spool directory (overrides ingest.spool_dir)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveSpoolDir != "" {
		cfg.Ingest.SpoolDir = serveSpoolDir
	}

	store, err := openStore(true)
	if err != nil {
		return err
	}
	defer store.Close()

	hh := health.NewHandler(logger)
	hh.RegisterChecker(health.NewSQLiteChecker(store.DB()))
	hh.RegisterChecker(health.NewDirChecker("spool", cfg.Ingest.SpoolDir))

	var archiver retention.Archiver
	if cfg.Archive.Enabled {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()
		hh.RegisterChecker(health.NewDBChecker("clickhouse", archive.Ping))

		buffer := storage.NewArchiveBuffer(archive.History(), cfg.ArchiveBufferStorageConfig(), logger)
		defer func() {
			if err := buffer.Close(); err != nil {
				logger.Error("failed to flush archive buffer", zap.Error(err))
			}
		}()
		archiver = buffer
	}

	tr := tracker.New(store.Heartbeats(), store.Metrics(), logger)
	processor := ingest.NewProcessor(store.Alerts(), tr, cfg.ProcessorConfig(), logger)
	trimmer := retention.NewTrimmer(store.Alerts(), archiver, cfg.TrimmerConfig(), logger)

	watcher, err := spool.NewWatcher(cfg.SpoolOptions(), spoolHandler(processor), logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)
	logger.Info("starting alertdb",
		zap.String("version", config.Version),
		zap.String("db", cfg.Database.Path),
		zap.String("spool", cfg.Ingest.SpoolDir),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watcher.Run(ctx)
	})

	g.Go(func() error {
		trimmer.Run(ctx)
		return nil
	})

	if cfg.Heartbeat.Interval > 0 {
		g.Go(func() error {
			runSelfHeartbeat(ctx, tr, cfg.Heartbeat)
			return nil
		})
	}

	if cfg.Metrics.Address != "" {
		srv := metrics.NewServer(cfg.Metrics.Address, hh, logger)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("alertdb stopped")
	return err
}

// spoolHandler ingests one spool file. The file is only failed when none of
// its alerts could be stored.
func spoolHandler(processor *ingest.Processor) spool.Handler {
	return func(ctx context.Context, alerts []*models.Alert) error {
		results, err := processor.ProcessBatch(ctx, alerts)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stored := 0
		for _, r := range results {
			if r.Err == nil {
				stored++
			}
		}
		if stored == 0 {
			return err
		}
		logger.Warn("some spooled alerts were rejected",
			zap.Int("stored", stored),
			zap.Int("total", len(alerts)),
			zap.Error(err),
		)
		return nil
	}
}

// runSelfHeartbeat records a heartbeat for this process until ctx is done.
func runSelfHeartbeat(ctx context.Context, tr *tracker.Tracker, hc HeartbeatConfig) {
	beat := func() {
		now := time.Now().UTC()
		tr.UpsertHeartbeat(ctx, &models.Heartbeat{
			Origin:      hc.Origin,
			Version:     config.Version,
			CreateTime:  now,
			ReceiveTime: now,
			Timeout:     hc.Timeout,
		})
	}

	beat()
	ticker := time.NewTicker(hc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
