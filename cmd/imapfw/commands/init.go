package commands

import (
	"github.com/spf13/cobra"

	"github.com/c4ffein/imapfw/internal/printer"
	"github.com/c4ffein/imapfw/internal/scaffold"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Write a starter configuration to the --config path (imapfw.yml by
default).

The starter pairs an IMAP repository with a local Maildir and reads the
IMAP password from an environment variable. Edit it to match your
setup, then check it with 'imapfw noop'.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(configPath, initForce); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(configPath)
	return nil
}
