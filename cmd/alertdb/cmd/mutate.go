package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertdb/internal/models"
	"github.com/good-yellow-bee/alertdb/internal/storage"
)

var (
	statusText        string
	statusEnvironment string
	statusResource    string
	statusEvent       string
)

var statusCmd = &cobra.Command{
	Use:   "status [id-prefix] <status>",
	Short: "Change the status of an alert",
	Long: `Change the status of an alert and append a status entry to its history.

The alert is addressed either by id prefix or, with --environment and
--resource, by the event it is correlated with.

Examples:
  alertdb status 4f3c ack --text "looking into it"
  alertdb status closed -E Production -r db01 --event disk_full`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sel storage.Selector
		var statusArg string
		if len(args) == 2 {
			sel, statusArg = storage.ByID(args[0]), args[1]
		} else {
			if statusEnvironment == "" || statusResource == "" || statusEvent == "" {
				return fmt.Errorf("an id prefix or --environment, --resource and --event are required")
			}
			sel = storage.ByKey(models.AlertKey{Environment: statusEnvironment, Resource: statusResource, Event: statusEvent})
			statusArg = args[0]
		}

		status := models.Status(statusArg)
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", statusArg)
		}

		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		alert, err := store.Alerts().SetStatus(context.Background(), sel, status, statusText)
		if err != nil {
			return err
		}
		if alert == nil {
			return fmt.Errorf("no matching alert")
		}

		out := cmd.OutOrStdout()
		if done, err := printStructured(out, alert); done {
			return err
		}
		fmt.Fprintf(out, "Alert %s is now %s\n", alert.ID, alert.Status)
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <id-prefix> <key=value>",
	Short: "Set a tag on matching alerts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Alerts().Tag(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %d alert(s)\n", n)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id-prefix>",
	Short: "Delete alerts by id prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Alerts().Delete(context.Background(), args[0])
		if err != nil {
			return err
		}
		logger.Info("alerts deleted", zap.String("id_prefix", args[0]), zap.Int64("count", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d alert(s)\n", n)
		return nil
	},
}

var deleteResourceCmd = &cobra.Command{
	Use:   "delete-resource <resource-prefix>",
	Short: "Delete every alert of resources matching a prefix",
	Long: `Delete every alert whose resource starts with the given prefix.
The match is case-sensitive.

Example:
  alertdb delete-resource db0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(false)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Alerts().DeleteResource(context.Background(), args[0])
		if err != nil {
			return err
		}
		logger.Info("resource alerts deleted", zap.String("resource_prefix", args[0]), zap.Int64("count", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d alert(s)\n", n)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusText, "text", "", "text recorded with the status change")
	statusCmd.Flags().StringVarP(&statusEnvironment, "environment", "E", "", "environment of the alert")
	statusCmd.Flags().StringVarP(&statusResource, "resource", "r", "", "resource of the alert")
	statusCmd.Flags().StringVar(&statusEvent, "event", "", "event of the alert")

	rootCmd.AddCommand(statusCmd, tagCmd, deleteCmd, deleteResourceCmd)
}
