package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var jobID string
	var jobName string
	var location string
	var stage string
	var takenAt string

	cmd := &cobra.Command{
		Use:   "capture <photo>...",
		Short: "Queue photos for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(jobID) == "" {
				return fmt.Errorf("--job is required")
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				taken := takenAt
				if taken == "" {
					if info, err := os.Stat(path); err == nil {
						taken = info.ModTime().UTC().Format(time.RFC3339)
					}
				}

				view, err := client.ingest(cmd.Context(), captureFields{
					JobID:    jobID,
					JobName:  jobName,
					Location: location,
					Stage:    stage,
					TakenAt:  taken,
				}, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), data)
				if err != nil {
					return fmt.Errorf("queue %s: %w", path, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "queued %s as %s (%s)\n",
					filepath.Base(path), view.ID, humanize.Bytes(uint64(len(data))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Job identifier the photos belong to")
	cmd.Flags().StringVar(&jobName, "name", "", "Human-readable job name")
	cmd.Flags().StringVar(&location, "location", "", "Where the photos were taken")
	cmd.Flags().StringVar(&stage, "stage", "during", "Capture stage: before, during, or after")
	cmd.Flags().StringVar(&takenAt, "taken-at", "", "Capture time in RFC 3339 (defaults to file mtime)")
	return cmd
}
