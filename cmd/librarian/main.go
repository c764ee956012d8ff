// Command librarian runs the school library lending service: the HTTP API,
// the reminder triggers and a few maintenance commands for cron and operators.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/library-lending/internal/config"
	"github.com/example/library-lending/internal/logging"
)

func main() {
	if err := newRootCommand(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by every sub-command.
type cli struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	overrides  overrides
}

func newRootCommand(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "librarian",
		Short:         "School library lending and reminder service",
		SilenceUsage:  true,
		Version:       version,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Path to a YAML configuration file; LIBRARY_* environment variables override it")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		logger, err := logging.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		c.cfg = cfg
		c.logger = logger.With("service", "librarian")
		return nil
	}

	rootCmd.AddCommand(
		serveCommand(c),
		migrateCommand(c),
		triggerCommand(c),
		previewCommand(c),
		loanCommand(c),
		noticeCommand(c),
		logCommand(c),
	)
	return rootCmd
}
