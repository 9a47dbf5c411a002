package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"snapsync/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List pending photos in delivery order",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.client().Queue(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, list)
			}

			out := cmd.OutOrStdout()
			if len(list.Items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}

			headers, rows, aligns := queueTable(list.Items, time.Now())
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			fmt.Fprintf(out, "%d pending\n", len(list.Items))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func queueTable(items []api.QueueItem, now time.Time) ([]string, [][]string, []columnAlignment) {
	headers := []string{"#", "ID", "Location", "Age"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight}

	rows := make([][]string, 0, len(items))
	for i, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.ID,
			formatLocation(item.Lat, item.Lon),
			formatAge(now.Sub(item.CreatedAt)),
		})
	}
	return headers, rows, aligns
}

func formatLocation(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f, %.5f", *lat, *lon)
}

func formatAge(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(age.Hours()), int(age.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
