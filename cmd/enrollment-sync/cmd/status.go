package cmd

import (
	"github.com/spf13/cobra"

	"enrollment-sync/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status [queue-id]",
	Short: "Show queue items",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var id string
		if len(args) == 1 {
			id = args[0]
		}
		items, err := a.Dispatcher.QueueStatus(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), model.QueueStatusResult{Success: true, QueueItems: items})
	},
}
