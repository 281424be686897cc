// Package cli implements the recondora command line.
package cli

import (
	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recondora",
	Short: "Recondora - multi-tool recon dispatcher",
	Long: `Recondora runs a selection of reconnaissance tools against one target
in parallel and collects their output into a single report. Remote lookups
go to public APIs; local tools run as subprocesses. Requests arrive through
the Telegram bot, the HTTP API or the recon command.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.recondora/recondora.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Console output is turned off for
// commands whose stdout carries a report.
func newLogger(cfg config.LoggingConfig, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Level,
		File:      cfg.File,
		Console:   console && cfg.Console,
		Pretty:    cfg.Pretty,
		Redaction: cfg.Redaction,
		MaxSize:   cfg.MaxSize,
		MaxAge:    cfg.MaxAge,
		Compress:  cfg.Compress,
	})
}
