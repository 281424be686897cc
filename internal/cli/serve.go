package cli

import (
	"fmt"

	"github.com/harun/recondora/internal/daemon"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Run the Telegram bot and HTTP API",
	Long: `Run the Recondora service in the foreground.
The Telegram bot, the HTTP API and the tool availability checker run until
SIGINT or SIGTERM is received.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if pid, err := daemon.RunningPID(cfg.DataDir); err == nil {
		return fmt.Errorf("daemon is already running (pid %d)", pid)
	}

	log, err := newLogger(cfg.Logging, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, version)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	d.Wait(cmd.Context())
	return nil
}
