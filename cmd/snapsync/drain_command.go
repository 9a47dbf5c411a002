package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Ask the daemon to start delivering queued photos now",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().Drain(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Drain triggered (network reachable: %s)\n", yesNo(resp.Reachable))
			if !resp.Reachable {
				fmt.Fprintln(out, "Items stay queued until connectivity returns")
			}
			return nil
		},
	}
}
