package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			status, err := client.status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Proofbox Daemon", colorize)

			runKind := statusOK
			runMsg := "running"
			if !status.Running {
				runKind = statusError
				runMsg = "stopped"
			}
			lines = append(lines, renderStatusLine("Daemon", runKind, runMsg+" ("+status.Version+")", colorize))

			if status.Paused {
				lines = append(lines, renderStatusLine("Uploads", statusWarn, "paused", colorize))
			} else {
				lines = append(lines, renderStatusLine("Uploads", statusOK, fmt.Sprintf("%d in flight", status.InFlight), colorize))
			}

			if status.NetWatch {
				lines = append(lines, renderStatusLine("Network watch", statusOK, "", colorize))
			} else {
				lines = append(lines, renderStatusLine("Network watch", statusWarn, "unavailable", colorize))
			}

			queueKind := statusOK
			if status.Queue.Failed > 0 {
				queueKind = statusWarn
			}
			lines = append(lines, renderStatusLine("Queue", queueKind,
				fmt.Sprintf("%d pending, %d uploading, %d uploaded, %d failed",
					status.Queue.Pending, status.Queue.Uploading, status.Queue.Uploaded, status.Queue.Failed),
				colorize))
			lines = append(lines, renderStatusLine("Database", statusInfo, status.DBPath, colorize))

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}
