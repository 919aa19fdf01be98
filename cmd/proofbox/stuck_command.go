package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStuckCommand(ctx *commandContext) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List uploads stuck in flight, or reset them to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			if reset {
				count, err := client.resetStuck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %d stuck upload(s)\n", count)
				return nil
			}

			resp, err := client.listStuck(cmd.Context())
			if err != nil {
				return err
			}
			if resp.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stuck uploads")
				return nil
			}

			rows := make([][]string, 0, resp.Total)
			for _, view := range resp.Captures {
				rows = append(rows, []string{
					view.ID,
					view.JobID,
					fmt.Sprintf("%d", view.Attempts),
					humanize.Time(view.UpdatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Job", "Attempts", "In Flight Since"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Reset stuck uploads to pending")
	return cmd
}
