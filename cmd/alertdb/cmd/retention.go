package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/health"
	"github.com/good-yellow-bee/alertdb/internal/metrics"
	"github.com/good-yellow-bee/alertdb/internal/retention"
	"github.com/good-yellow-bee/alertdb/internal/storage"
	"github.com/good-yellow-bee/alertdb/pkg/config"
)

var (
	retentionOnce       bool
	retentionMaxHistory int
	retentionInterval   time.Duration
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Trim alert history and archive the removed entries",
	Long: `Keep at most retention.max_history history entries per alert.

Removed entries are shipped to the ClickHouse archive when archive.enabled
is set. Without --once the command runs until interrupted, trimming every
retention.interval and serving Prometheus metrics on metrics.address.

Examples:
  alertdb retention --once --max-history 50
  alertdb retention -c alertdb.yaml`,
	RunE: runRetention,
}

func init() {
	retentionCmd.Flags().BoolVar(&retentionOnce, "once", false, "run a single pass and exit")
	retentionCmd.Flags().IntVar(&retentionMaxHistory, "max-history", 0, "entries kept per alert (overrides retention.max_history)")
	retentionCmd.Flags().DurationVar(&retentionInterval, "interval", 0, "time between runs (overrides retention.interval)")

	rootCmd.AddCommand(retentionCmd)
}

func runRetention(cmd *cobra.Command, args []string) error {
	if retentionMaxHistory > 0 {
		cfg.Retention.MaxHistory = retentionMaxHistory
	}
	if retentionInterval > 0 {
		cfg.Retention.Interval = retentionInterval
	}

	store, err := openStore(true)
	if err != nil {
		return err
	}
	defer store.Close()

	var archiver retention.Archiver
	if cfg.Archive.Enabled {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		buffer := storage.NewArchiveBuffer(archive.History(), cfg.ArchiveBufferStorageConfig(), logger)
		defer func() {
			if err := buffer.Close(); err != nil {
				logger.Error("failed to flush archive buffer", zap.Error(err))
			}
			stats := buffer.Stats()
			logger.Info("archive buffer closed",
				zap.Int64("inserted", stats.Inserted),
				zap.Int64("dropped", stats.Dropped),
			)
		}()
		archiver = buffer
	}

	trimmer := retention.NewTrimmer(store.Alerts(), archiver, cfg.TrimmerConfig(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if retentionOnce {
		report, err := trimmer.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("run retention: %w", err)
		}
		out := cmd.OutOrStdout()
		if done, err := printStructured(out, report); done {
			return err
		}
		fmt.Fprintf(out, "Trimmed %d entries from %d alert(s), archived %d\n",
			report.Trimmed, report.Alerts, report.Archived)
		return nil
	}

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)
	if cfg.Metrics.Address != "" {
		hh := health.NewHandler(logger)
		hh.RegisterChecker(health.NewSQLiteChecker(store.DB()))
		srv := metrics.NewServer(cfg.Metrics.Address, hh, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting alertdb retention", zap.String("version", config.Version))
	if _, err := trimmer.RunOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Error("initial retention run failed", zap.Error(err))
	}
	trimmer.Run(ctx)
	return nil
}

// openArchive connects to ClickHouse and ensures the archive table exists.
func openArchive() (*storage.ClickHouseArchive, error) {
	archive := storage.NewClickHouseArchive(cfg.ClickHouseStorageConfig(), logger)
	if err := archive.Open(); err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := archive.Migrate(); err != nil {
		archive.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return archive, nil
}
