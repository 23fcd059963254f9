package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"enrollment-sync/internal/model"
	"enrollment-sync/internal/pipeline"
)

var (
	submitFile     string
	submitFilename string
	submitPriority int
)

var submitCmd = &cobra.Command{
	Use:   "submit [csv-url]",
	Short: "Fetch a CSV and reconcile it",
	Long: `submit fetches the CSV at csv-url, or reads --file, and reconciles it.
Files over the size threshold are queued; the command then waits for its
workers to finish them before exiting.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if submitFile != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Dispatcher.Start(ctx)

		var res *model.SubmitResult
		if submitFile != "" {
			raw, err := os.ReadFile(submitFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", submitFile, err)
			}
			name := submitFilename
			if name == "" {
				name = filepath.Base(submitFile)
			}
			res, err = a.Dispatcher.Ingest(ctx, pipeline.DecodeText(raw), pipeline.IngestMeta{
				Filename:    name,
				Priority:    submitPriority,
				SourceEmail: "cli",
			})
			if err != nil {
				return err
			}
		} else {
			res, err = a.Dispatcher.Submit(ctx, model.SubmitRequest{
				CSVURL:      args[0],
				CSVFilename: submitFilename,
				Priority:    submitPriority,
				SourceEmail: "cli",
			})
			if err != nil {
				return err
			}
		}

		if res.Mode == model.ModeQueued {
			// Drain the workers so the queued item finishes before exit.
			a.Dispatcher.Stop()
			items, err := a.Dispatcher.QueueStatus(ctx, res.QueueID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.QueueStatusResult{Success: true, QueueItems: items})
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "read the CSV from a local file instead of a URL")
	submitCmd.Flags().StringVar(&submitFilename, "filename", "", "name recorded on queue items")
	submitCmd.Flags().IntVar(&submitPriority, "priority", 0, "queue priority, higher runs first")
}
