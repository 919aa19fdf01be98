package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <capture-id>",
		Short: "Show details for one capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			view, err := client.getCapture(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"ID", view.ID},
				{"Job", view.JobID},
				{"Job name", view.JobName},
				{"Location", view.Location},
				{"Stage", view.Stage},
				{"Status", view.Status},
				{"Attempts", fmt.Sprintf("%d", view.Attempts)},
				{"Size", humanize.Bytes(uint64(view.ByteSize))},
				{"MIME type", view.MimeType},
				{"Processed", yesNo(view.Processed)},
				{"Taken at", view.TakenAt.Format(time.RFC3339)},
				{"Created", humanize.Time(view.CreatedAt)},
				{"Updated", humanize.Time(view.UpdatedAt)},
			}
			if view.UploadedAt != nil {
				rows = append(rows, []string{"Uploaded at", view.UploadedAt.Format(time.RFC3339)})
			}
			if view.RemoteKey != "" {
				rows = append(rows, []string{"Remote key", view.RemoteKey})
			}
			if view.LastError != "" {
				rows = append(rows, []string{"Last error", view.LastError})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}
