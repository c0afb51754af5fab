package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/vtpsync/pkg/audit"
	"github.com/newtron-network/vtpsync/pkg/cli"
)

var (
	auditDevice    string
	auditOperation string
	auditLast      string
	auditLimit     int
	auditFailures  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `View the audit log of device changes, newest first.

Each reconciliation pass records one event per visited device, and each
device write command records one event.

Examples:
  vtpsync audit --device sw1
  vtpsync audit --last 24h --failures
  vtpsync audit --operation reconcile --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			Operation:   auditOperation,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			d, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.Since = time.Now().Add(-d)
		}

		l, err := openAudit()
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer l.Close()
		events, err := l.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "DEVICE", "OPERATION", "STATUS", "CHANGES")
		for _, e := range events {
			status := green("ok")
			switch {
			case !e.Success:
				status = red("failed")
			case e.DryRun:
				status = yellow("dry-run")
			}
			t.Row(
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.User,
				e.Device,
				e.Operation,
				status,
				cli.Dash(strings.Join(e.Changes, "; ")),
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation (reconcile, vlan, port, save)")
	auditCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
}
