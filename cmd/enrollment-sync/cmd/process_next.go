package cmd

import (
	"github.com/spf13/cobra"

	"enrollment-sync/internal/model"
	"enrollment-sync/pkg/errors"
)

var processNextCmd = &cobra.Command{
	Use:   "process-next",
	Short: "Claim and process the next queued CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.Dispatcher.ProcessNext(ctx)
		if errors.Is(err, errors.ErrQueueEmpty) {
			return printJSON(cmd.OutOrStdout(), model.ProcessNextResult{Success: true, Message: "No items in queue"})
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), model.ProcessNextResult{
			Success:   true,
			Message:   "Queue item processed",
			QueueItem: item,
		})
	},
}
