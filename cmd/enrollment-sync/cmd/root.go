// Package cmd implements the enrollment-sync commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"enrollment-sync/internal/app"
	"enrollment-sync/internal/config"
	"enrollment-sync/pkg/logging"
)

var (
	configFile string
	cfg        *config.Config

	// Version is set by main.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "enrollment-sync",
	Short: "Reconcile enrollment CSV exports into the record store",
	Long: `enrollment-sync fetches course-provider enrollment CSVs, normalizes
each row and upserts it into the configured record store keyed by email.

Small files are reconciled immediately. Files over the size threshold are
queued and processed by background workers or by process-next.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupCommand,
}

// Execute runs the root command with signal handling.
func Execute(version string) {
	Version = version
	rootCmd.Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is ./enrollment-sync.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (auto, json, console)")
	flags.String("store", "sqlite", "store backend (sqlite, postgres, parse, memory)")
	flags.String("db", "enrollment.db", "sqlite database path")

	mustBind("log.level", flags.Lookup("log-level"))
	mustBind("log.format", flags.Lookup("log-format"))
	mustBind("store.backend", flags.Lookup("store"))
	mustBind("store.sqlite.path", flags.Lookup("db"))

	rootCmd.AddCommand(serveCmd, submitCmd, statusCmd, processNextCmd, exportCmd)
}

func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", key, err))
	}
}

// setupCommand loads configuration and logging before any command runs.
func setupCommand(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logging.Configure(&cfg.Log)
	if cfg.ConfigFile != "" {
		logging.Debug().Str("file", cfg.ConfigFile).Msg("Using config file")
	}

	logger := logging.Default()
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return nil
}

// openApp builds the application for one command invocation.
func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
