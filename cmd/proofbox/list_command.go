package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued captures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			resp, err := client.listCaptures(cmd.Context(), jobID, status)
			if err != nil {
				return err
			}
			if resp.Total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no captures found")
				return nil
			}

			rows := make([][]string, 0, resp.Total)
			for _, view := range resp.Captures {
				lastError := view.LastError
				if len(lastError) > 40 {
					lastError = lastError[:37] + "..."
				}
				rows = append(rows, []string{
					view.ID,
					view.JobID,
					view.Stage,
					view.Status,
					fmt.Sprintf("%d", view.Attempts),
					humanize.Bytes(uint64(view.ByteSize)),
					humanize.Time(view.TakenAt),
					lastError,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Job", "Stage", "Status", "Attempts", "Size", "Taken", "Last Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Filter by job identifier")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: pending, uploading, uploaded, failed")
	return cmd
}
