package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

var (
	listFilter  filterFlags
	listSort    string
	listLimit   int
	listHistory bool

	countsFilter filterFlags

	resourcesFilter filterFlags
	resourcesLimit  int
)

var getCmd = &cobra.Command{
	Use:   "get <id-prefix>",
	Short: "Show one alert with its history",
	Long: `Show the alert whose id or last-receive id starts with the given prefix.

Example:
  alertdb get 4f3c`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		alert, err := store.Alerts().GetByID(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}
		if alert == nil {
			return fmt.Errorf("no alert matches %q", args[0])
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, alert); done {
			return err
		}
		printAlertDetail(out, alert)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	Long: `List alerts matching the given filters.

Examples:
  # Open critical and major alerts in Production
  alertdb list -E Production --status open -s critical -s major

  # Alerts tagged site=lon, most severe first
  alertdb list -t site=lon --sort severity,-lastReceiveTime

  # Filter expression
  alertdb list -q 'duplicate_count > 10 and resource startsWith "db"'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilter.build(time.Now().UTC())
		if err != nil {
			return err
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts, err := store.Alerts().List(context.Background(), storage.ListOptions{
			Filter:      filter,
			Sort:        parseSort(listSort),
			Limit:       listLimit,
			WithHistory: listHistory,
		})
		if err != nil {
			return fmt.Errorf("list alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, alerts); done {
			return err
		}
		printAlertTable(out, alerts)
		return nil
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Count alerts by severity and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := countsFilter.build(time.Now().UTC())
		if err != nil {
			return err
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		counts, err := store.Alerts().AggregateCounts(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("count alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, counts); done {
			return err
		}
		printCounts(out, counts)
		return nil
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List distinct resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := resourcesFilter.build(time.Now().UTC())
		if err != nil {
			return err
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		resources, err := store.Alerts().ListResources(context.Background(), storage.ListOptions{
			Filter: filter,
			Limit:  resourcesLimit,
		})
		if err != nil {
			return fmt.Errorf("list resources: %w", err)
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, resources); done {
			return err
		}
		if len(resources) == 0 {
			fmt.Fprintln(out, "No resources found.")
			return nil
		}
		fmt.Fprintf(out, "\n%-16s  %-30s  %-20s  %s\n", "ENVIRONMENT", "RESOURCE", "SERVICE", "LAST RECEIVED")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, r := range resources {
			fmt.Fprintf(out, "%-16s  %-30s  %-20s  %s\n",
				r.Environment, r.Resource, r.Service, formatTime(r.LastReceiveTime))
		}
		fmt.Fprintf(out, "\nTotal: %d resource(s)\n", len(resources))
		return nil
	},
}

func init() {
	listFilter.register(listCmd)
	listCmd.Flags().StringVar(&listSort, "sort", "-lastReceiveTime", "sort fields, '-' prefix for descending")
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 100, "maximum alerts (0 for no limit)")
	listCmd.Flags().BoolVar(&listHistory, "history", false, "include history")

	countsFilter.register(countsCmd)

	resourcesFilter.register(resourcesCmd)
	resourcesCmd.Flags().IntVarP(&resourcesLimit, "limit", "l", 0, "maximum resources (0 for no limit)")

	rootCmd.AddCommand(getCmd, listCmd, countsCmd, resourcesCmd)
}

func printAlertTable(w io.Writer, alerts []*models.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts found.")
		return
	}

	fmt.Fprintf(w, "\n%-8s  %-13s  %-7s  %-5s  %-12s  %-16s  %-20s  %s\n",
		"ID", "SEVERITY", "STATUS", "DUPL", "ENVIRONMENT", "RESOURCE", "EVENT", "LAST RECEIVED")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, a := range alerts {
		fmt.Fprintf(w, "%-8s  %-13s  %-7s  %-5d  %-12s  %-16s  %-20s  %s\n",
			shortID(a.ID),
			a.Severity,
			a.Status,
			a.DuplicateCount,
			a.Environment,
			a.Resource,
			a.Event,
			formatTime(a.LastReceiveTime),
		)
	}
	fmt.Fprintf(w, "\nTotal: %d alert(s)\n", len(alerts))
}

func printAlertDetail(w io.Writer, a *models.Alert) {
	fmt.Fprintf(w, "ID:              %s\n", a.ID)
	fmt.Fprintf(w, "Last receive ID: %s\n", a.LastReceiveID)
	fmt.Fprintf(w, "Key:             %s\n", a.Key())
	if len(a.CorrelatedEvents) > 0 {
		fmt.Fprintf(w, "Correlated:      %s\n", strings.Join(a.CorrelatedEvents, ", "))
	}
	fmt.Fprintf(w, "Severity:        %s (previous %s, %s)\n", a.Severity, a.PreviousSeverity, a.TrendIndication)
	fmt.Fprintf(w, "Status:          %s\n", a.Status)
	fmt.Fprintf(w, "Duplicates:      %d\n", a.DuplicateCount)
	if a.Service != "" {
		fmt.Fprintf(w, "Service:         %s\n", a.Service)
	}
	if a.Group != "" {
		fmt.Fprintf(w, "Group:           %s\n", a.Group)
	}
	if a.Text != "" {
		fmt.Fprintf(w, "Text:            %s\n", a.Text)
	}
	if len(a.Tags) > 0 {
		tags := make([]string, 0, len(a.Tags))
		for k, v := range a.Tags {
			tags = append(tags, k+"="+v)
		}
		fmt.Fprintf(w, "Tags:            %s\n", strings.Join(tags, " "))
	}
	fmt.Fprintf(w, "Created:         %s\n", formatTime(a.CreateTime))
	fmt.Fprintf(w, "Last received:   %s\n", formatTime(a.LastReceiveTime))

	if len(a.History) == 0 {
		return
	}
	fmt.Fprintf(w, "\nHistory:\n")
	for _, h := range a.History {
		switch h.Kind {
		case models.HistoryKindStatus:
			fmt.Fprintf(w, "  %s  status  %-13s  %s\n", formatTime(h.UpdateTime), h.Status, h.Text)
		default:
			fmt.Fprintf(w, "  %s  event   %-13s  %s %s\n", formatTime(h.ReceiveTime), h.Severity, h.Event, h.Text)
		}
	}
}

func printCounts(w io.Writer, c *storage.Counts) {
	fmt.Fprintf(w, "Total: %d\n\n", c.Total)
	fmt.Fprintf(w, "%-15s  %s\n", "SEVERITY", "COUNT")
	for _, s := range models.AllSeverities {
		fmt.Fprintf(w, "%-15s  %d\n", s, c.BySeverity[s])
	}
	fmt.Fprintf(w, "\n%-15s  %s\n", "STATUS", "COUNT")
	for _, s := range models.AllStatuses {
		fmt.Fprintf(w, "%-15s  %d\n", s, c.ByStatus[s])
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
