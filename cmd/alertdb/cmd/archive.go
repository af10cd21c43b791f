package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/storage"
)

var (
	archiveAlertID     string
	archiveEnvironment string
	archiveResource    string
	archiveSince       time.Duration
	archiveLimit       int
	archiveOffset      int
	archiveOlderThan   time.Duration
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query and purge the ClickHouse history archive",
	Long: `Commands for the history archive filled by the retention command.

Connection settings come from the archive.clickhouse config section.

Examples:
  alertdb archive list --alert-id 4f3c0a12-... --limit 20
  alertdb archive purge --older-than 2160h`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived history entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		filter := &storage.ArchiveFilter{
			AlertID:     archiveAlertID,
			Environment: archiveEnvironment,
			Resource:    archiveResource,
			Limit:       archiveLimit,
			Offset:      archiveOffset,
		}
		if archiveSince > 0 {
			filter.StartTime = time.Now().UTC().Add(-archiveSince)
		}

		ctx := context.Background()
		total, err := archive.History().Count(ctx, filter)
		if err != nil {
			return fmt.Errorf("count archive: %w", err)
		}
		entries, err := archive.History().Query(ctx, filter)
		if err != nil {
			return fmt.Errorf("query archive: %w", err)
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, entries); done {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No archived entries found.")
			return nil
		}

		fmt.Fprintf(out, "\n%-20s  %-8s  %-12s  %-16s  %-6s  %-13s  %s\n",
			"ARCHIVED", "ALERT", "ENVIRONMENT", "RESOURCE", "KIND", "SEVERITY", "TEXT")
		fmt.Fprintln(out, strings.Repeat("-", 110))
		for _, e := range entries {
			sev := string(e.Entry.Severity)
			if e.Entry.Status != "" {
				sev = string(e.Entry.Status)
			}
			fmt.Fprintf(out, "%-20s  %-8s  %-12s  %-16s  %-6s  %-13s  %s\n",
				formatTime(e.ArchivedAt), shortID(e.AlertID), e.Environment, e.Resource,
				e.Entry.Kind, sev, e.Entry.Text)
		}
		fmt.Fprintf(out, "\nShowing %d of %d entries\n", len(entries), total)
		return nil
	},
}

var archivePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete archived entries older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if archiveOlderThan <= 0 {
			return fmt.Errorf("--older-than is required")
		}

		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		before := time.Now().UTC().Add(-archiveOlderThan)
		n, err := archive.History().DeleteBefore(context.Background(), before)
		if err != nil {
			return fmt.Errorf("purge archive: %w", err)
		}
		logger.Info("archive purged", zap.Time("before", before), zap.Int64("count", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d archived entries\n", n)
		return nil
	},
}

func init() {
	fs := archiveListCmd.Flags()
	fs.StringVar(&archiveAlertID, "alert-id", "", "alert id")
	fs.StringVarP(&archiveEnvironment, "environment", "E", "", "environment")
	fs.StringVarP(&archiveResource, "resource", "r", "", "resource")
	fs.DurationVar(&archiveSince, "since", 0, "only entries archived within this duration")
	fs.IntVarP(&archiveLimit, "limit", "l", 100, "maximum entries")
	fs.IntVar(&archiveOffset, "offset", 0, "entries to skip")

	archivePurgeCmd.Flags().DurationVar(&archiveOlderThan, "older-than", 0, "age of entries to delete")

	archiveCmd.AddCommand(archiveListCmd, archivePurgeCmd)
	rootCmd.AddCommand(archiveCmd)
}
