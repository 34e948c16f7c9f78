package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/internal/printer"
)

var (
	version string
	commit  string
	date    string
)

// configPath is shared by every command through the persistent --config
// flag.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imapfw",
	Short: "imapfw - concurrent mail synchronization",
	Long: `imapfw synchronizes mail between pairs of repositories (IMAP
mailboxes, local Maildir trees) defined in imapfw.yml.

Every account is synced by its own crew of workers exchanging messages
over topic queues: one driver worker per repository owns the
connection, engine workers drive them, and architects supervise the
crew and aggregate its exit codes into the process exit code.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "imapfw --accounts work" instead of "imapfw syncaccounts --accounts work"
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// exitError carries a resolved worker aggregate across cobra to the
// process boundary.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// the workers' aggregate when a run resolved with failures, ActionError
// for anything that broke before the workers were involved.
func Execute() int {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err == nil {
		return exitcode.OK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	// Errors built by the printer already reached stderr in full.
	var reported *printer.ReportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitcode.ActionError
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
}

// loadConfig loads and validates the configuration at --config.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			fmt.Sprintf("cannot load %s", configPath),
			err.Error(),
			[]string{
				"Write a starter configuration: imapfw init",
				"Point --config at an existing file: imapfw --config path/to/imapfw.yml noop",
			},
		)
	}
	return conf, nil
}

// newLogger builds the process logger from the logging settings. Logs
// go to stderr; stdout carries the human-facing report.
func newLogger(conf config.Logging) *slog.Logger {
	var level slog.Level
	switch conf.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if conf.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
