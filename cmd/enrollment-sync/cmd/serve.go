package cmd

import (
	"github.com/spf13/cobra"

	"enrollment-sync/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the queue workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logging.FromContext(ctx).Error().Err(err).Msg("Failed to close application")
			}
		}()

		a.Dispatcher.Start(ctx)

		logging.FromContext(ctx).Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", cfg.Store.Backend).
			Int("workers", cfg.Ingest.Workers).
			Msg("Starting API server")
		return a.Router().Start(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	mustBind("server.addr", serveCmd.Flags().Lookup("addr"))
	serveCmd.Flags().Int("workers", 2, "queue worker goroutines")
	mustBind("ingest.workers", serveCmd.Flags().Lookup("workers"))
}
