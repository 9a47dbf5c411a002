package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snapsync/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity, and delivery progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Snapsync Status", colorize)

			runningKind := statusError
			if status.Running {
				runningKind = statusOK
			}
			lines = append(lines, renderStatusLine("Daemon", runningKind, fmt.Sprintf("pid %d", status.PID), colorize))

			connKind := statusWarn
			connDetail := "offline, queueing locally"
			if status.Reachable {
				connKind = statusOK
				connDetail = "online"
			}
			lines = append(lines, renderStatusLine("Connectivity", connKind, connDetail, colorize))

			drainDetail := "idle"
			if status.Draining {
				drainDetail = "draining"
			}
			lines = append(lines, renderStatusLine("Delivery", statusInfo, drainDetail, colorize))

			queueKind := statusOK
			if status.QueueLength > 0 {
				queueKind = statusWarn
			}
			lines = append(lines, renderStatusLine("Queue", queueKind, fmt.Sprintf("%d pending", status.QueueLength), colorize))
			lines = append(lines, renderStatusLine("Progress", statusInfo,
				fmt.Sprintf("%d produced, %d delivered", status.Totals.Produced, status.Totals.Delivered), colorize))
			lines = append(lines, renderStatusLine("Endpoint", statusInfo, status.Endpoint, colorize))

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

// progressSummary is shared with the queue command footer.
func progressSummary(totals api.Totals) string {
	return fmt.Sprintf("%d produced, %d delivered, %d pending",
		totals.Produced, totals.Delivered, totals.Produced-totals.Delivered)
}
