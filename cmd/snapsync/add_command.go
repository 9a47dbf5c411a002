package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "add <photo.jpg> [more.jpg ...]",
		Short: "Queue photos for delivery",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var latPtr, lonPtr *float64
			latSet := cmd.Flags().Changed("lat")
			lonSet := cmd.Flags().Changed("lon")
			if latSet != lonSet {
				return fmt.Errorf("--lat and --lon must be provided together")
			}
			if latSet {
				latPtr, lonPtr = &lat, &lon
			}

			client := ctx.client()
			out := cmd.OutOrStdout()
			for _, arg := range args {
				path := strings.TrimSpace(arg)
				payload, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				resp, err := client.Enqueue(cmd.Context(), filepath.Base(path), payload, latPtr, lonPtr)
				if err != nil {
					return fmt.Errorf("queue %s: %w", path, err)
				}
				fmt.Fprintf(out, "Queued %s as %s (%d pending)\n", path, resp.ID, resp.Queued)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Capture latitude to attach to the photos")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Capture longitude to attach to the photos")
	return cmd
}
