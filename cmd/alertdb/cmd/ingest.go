package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/ingest"
	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/spool"
	"github.com/good-yellow-bee/alertdb/internal/tracker"
)

// ingestFlags builds a single alert from the command line.
type ingestFlags struct {
	file        string
	environment string
	resource    string
	event       string
	severity    string
	correlate   []string
	service     string
	group       string
	value       string
	text        string
	origin      string
	eventType   string
	tags        []string
	timeout     int
}

var ingestOpts ingestFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest alerts",
	Long: `Classify and store incoming alerts.

With --event the alert is built from flags. Otherwise a JSON array or a
stream of JSON objects is read from --file or stdin.

Examples:
  alertdb ingest -E Production -r db01 --event disk_full -s major --text "disk is 98% full"
  alertdb ingest -f alerts.json
  tail -f alerts.jsonl | alertdb ingest`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var alerts []*models.Alert
		if ingestOpts.event != "" {
			alerts = []*models.Alert{ingestOpts.alert()}
		} else {
			in := cmd.InOrStdin()
			if ingestOpts.file != "" && ingestOpts.file != "-" {
				f, err := os.Open(ingestOpts.file)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			var err error
			alerts, err = spool.DecodeAlerts(in)
			if err != nil {
				return err
			}
		}
		if len(alerts) == 0 {
			return fmt.Errorf("no alerts to ingest")
		}

		store, err := openStore(true)
		if err != nil {
			return err
		}
		defer store.Close()

		tr := tracker.New(store.Heartbeats(), store.Metrics(), logger)
		processor := ingest.NewProcessor(store.Alerts(), tr, cfg.ProcessorConfig(), logger)

		results, batchErr := processor.ProcessBatch(context.Background(), alerts)
		if batchErr != nil {
			logger.Warn("some alerts were not ingested", zap.Error(batchErr))
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, ingestReport(results)); done {
			if err != nil {
				return err
			}
			return batchErr
		}
		for i, r := range results {
			if r.Err != nil {
				fmt.Fprintf(out, "%-4d  %-10s  %v\n", i, "error", r.Err)
				continue
			}
			fmt.Fprintf(out, "%-4d  %-10s  %s  %s  %s\n", i, r.Outcome, shortID(r.Alert.ID), r.Alert.Severity, r.Alert.Key())
		}
		return batchErr
	},
}

func init() {
	fs := ingestCmd.Flags()
	fs.StringVarP(&ingestOpts.file, "file", "f", "", "read alerts from file ('-' for stdin)")
	fs.StringVarP(&ingestOpts.environment, "environment", "E", "", "environment")
	fs.StringVarP(&ingestOpts.resource, "resource", "r", "", "resource")
	fs.StringVar(&ingestOpts.event, "event", "", "event name")
	fs.StringVarP(&ingestOpts.severity, "severity", "s", string(models.SeverityNormal), "severity")
	fs.StringSliceVar(&ingestOpts.correlate, "correlate", nil, "correlated events")
	fs.StringVar(&ingestOpts.service, "service", "", "service")
	fs.StringVar(&ingestOpts.group, "group", "", "group")
	fs.StringVar(&ingestOpts.value, "value", "", "value")
	fs.StringVar(&ingestOpts.text, "text", "", "text")
	fs.StringVar(&ingestOpts.origin, "origin", "", "origin")
	fs.StringVar(&ingestOpts.eventType, "type", "", "event type")
	fs.StringArrayVarP(&ingestOpts.tags, "tag", "t", nil, "tag key=value (repeatable)")
	fs.IntVar(&ingestOpts.timeout, "timeout", 86400, "timeout in seconds")

	rootCmd.AddCommand(ingestCmd)
}

func (f *ingestFlags) alert() *models.Alert {
	a := models.NewAlert(f.environment, f.resource, f.event, models.Severity(f.severity))
	a.CorrelatedEvents = f.correlate
	a.Service = f.service
	a.Group = f.group
	a.Value = f.value
	a.Text = f.text
	a.Origin = f.origin
	a.EventType = f.eventType
	a.Tags = models.ParseTags(f.tags)
	a.Timeout = f.timeout
	return a
}

type ingestResult struct {
	Outcome string        `json:"outcome"`
	Alert   *models.Alert `json:"alert,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func ingestReport(results []*ingest.Result) []ingestResult {
	report := make([]ingestResult, len(results))
	for i, r := range results {
		if r.Err != nil {
			report[i] = ingestResult{Outcome: "error", Error: r.Err.Error()}
			continue
		}
		report[i] = ingestResult{Outcome: string(r.Outcome), Alert: r.Alert}
	}
	return report
}
