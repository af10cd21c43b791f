package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/tracker"
	"github.com/good-yellow-bee/alertdb/pkg/config"
)

var (
	heartbeatVersion string
	heartbeatTimeout int
	heartbeatsStale  bool
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat <origin>",
	Short: "Record a heartbeat for an origin",
	Long: `Create or refresh the liveness record of one origin.

Example:
  alertdb heartbeat collector-01 --timeout 300`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(true)
		if err != nil {
			return err
		}
		defer store.Close()

		tr := tracker.New(store.Heartbeats(), store.Metrics(), logger)
		now := time.Now().UTC()
		tr.UpsertHeartbeat(context.Background(), &models.Heartbeat{
			Origin:      args[0],
			Version:     heartbeatVersion,
			CreateTime:  now,
			ReceiveTime: now,
			Timeout:     heartbeatTimeout,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat recorded for %s\n", args[0])
		return nil
	},
}

var heartbeatsCmd = &cobra.Command{
	Use:   "heartbeats",
	Short: "List heartbeats",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		tr := tracker.New(store.Heartbeats(), store.Metrics(), logger)
		ctx := context.Background()
		var heartbeats []*models.Heartbeat
		if heartbeatsStale {
			heartbeats = tr.StaleHeartbeats(ctx)
		} else {
			heartbeats = tr.ListHeartbeats(ctx)
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, heartbeats); done {
			return err
		}
		if len(heartbeats) == 0 {
			fmt.Fprintln(out, "No heartbeats found.")
			return nil
		}

		now := time.Now()
		fmt.Fprintf(out, "\n%-30s  %-12s  %-8s  %-20s  %s\n", "ORIGIN", "VERSION", "TIMEOUT", "RECEIVED", "STATE")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, hb := range heartbeats {
			state := "ok"
			if hb.Stale(now) {
				state = "stale"
			}
			fmt.Fprintf(out, "%-30s  %-12s  %-8d  %-20s  %s\n",
				hb.Origin, hb.Version, hb.Timeout, formatTime(hb.ReceiveTime), state)
		}
		fmt.Fprintf(out, "\nTotal: %d heartbeat(s)\n", len(heartbeats))
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List stored operational metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		tr := tracker.New(store.Heartbeats(), store.Metrics(), logger)
		metrics := tr.ListMetrics(context.Background())

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, metrics); done {
			return err
		}
		if len(metrics) == 0 {
			fmt.Fprintln(out, "No metrics recorded.")
			return nil
		}

		fmt.Fprintf(out, "\n%-10s  %-14s  %-6s  %-12s  %-12s  %s\n", "GROUP", "NAME", "TYPE", "VALUE", "COUNT", "TOTAL MS")
		fmt.Fprintln(out, strings.Repeat("-", 80))
		for _, m := range metrics {
			fmt.Fprintf(out, "%-10s  %-14s  %-6s  %-12d  %-12d  %d\n",
				m.Group, m.Name, m.Type, m.Value, m.Count, m.TotalTime)
		}
		return nil
	},
}

func init() {
	heartbeatCmd.Flags().StringVar(&heartbeatVersion, "version", config.Version, "reporting client version")
	heartbeatCmd.Flags().IntVar(&heartbeatTimeout, "timeout", 300, "seconds until the origin counts as stale")
	heartbeatsCmd.Flags().BoolVar(&heartbeatsStale, "stale", false, "only stale origins")

	rootCmd.AddCommand(heartbeatCmd, heartbeatsCmd, metricsCmd)
}
