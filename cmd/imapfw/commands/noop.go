package commands

import (
	"github.com/spf13/cobra"

	"github.com/c4ffein/imapfw/internal/printer"
)

var noopCmd = &cobra.Command{
	Use:   "noop",
	Short: "Load and validate the configuration",
	Long: `Load and validate the configuration, then exit.

noop is the cheapest check after editing the configuration: it resolves
the defaults and reports the first problem a sync would hit, without
touching any repository.`,
	RunE: runNoop,
}

func init() {
	rootCmd.AddCommand(noopCmd)
}

func runNoop(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	printer.Success("%s is valid: %d account(s), %d repositories\n",
		configPath, len(conf.Accounts), len(conf.Repositories))
	return nil
}
