package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c4ffein/imapfw/internal/architect"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/internal/printer"
	"github.com/c4ffein/imapfw/internal/syncstate"
)

var (
	syncAccountsList []string
	syncJobs         int
)

var syncAccountsCmd = &cobra.Command{
	Use:   "syncaccounts",
	Short: "Synchronize accounts",
	Long: `Synchronize accounts between their left and right repositories.

Each account is handed to one concurrent account worker; the worker
brings up one driver worker per repository and fans the account's
folders out over further workers. The process exit code is the worst
code any worker reported: 0 when every account synced, 10 when at
least one failed.

Examples:
  # Sync every configured account
  imapfw syncaccounts

  # Sync two accounts, one at a time
  imapfw syncaccounts --accounts personal,work --jobs 1`,
	RunE: runSyncAccounts,
}

func init() {
	syncAccountsCmd.Flags().StringSliceVarP(&syncAccountsList, "accounts", "a", nil, "Accounts to sync (default: all configured)")
	syncAccountsCmd.Flags().IntVarP(&syncJobs, "jobs", "j", 0, "Max accounts synced concurrently (default: settings.max_sync_accounts)")
	rootCmd.AddCommand(syncAccountsCmd)
}

func runSyncAccounts(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	accounts := syncAccountsList
	if len(accounts) == 0 {
		accounts = conf.AccountNames()
	}
	for _, name := range accounts {
		if _, err := conf.Account(name); err != nil {
			return printer.ErrorWithContext(
				fmt.Sprintf("unknown account %q", name),
				"The account is not defined in the configuration.",
				map[string]string{
					"Config":   configPath,
					"Accounts": strings.Join(conf.AccountNames(), ", "),
				},
				[]string{
					"Check the spelling, or run without --accounts to sync every account.",
				},
			)
		}
	}

	jobs := conf.Settings.MaxSyncAccounts
	if syncJobs > 0 {
		jobs = syncJobs
	}

	store, err := syncstate.Open(conf.Settings.StatePath)
	if err != nil {
		return printer.Error(
			"cannot open the sync state",
			err.Error(),
			[]string{fmt.Sprintf("Check that settings.state_path (%s) is writable.", conf.Settings.StatePath)},
		)
	}
	defer store.Close()

	// A signal cancels the run: the workers are killed and the run
	// resolves as a failure instead of hanging on a wedged connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			printer.Warning("received %v, stopping the sync...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	arch := architect.NewSyncAccountsArchitect(conf, store, newLogger(conf.Settings.Logging))
	if err := arch.Start(accounts, jobs); err != nil {
		return printer.Error("cannot start the sync", err.Error(), nil)
	}

	code := arch.Run(ctx)
	if code != exitcode.OK {
		printer.Warning("sync of %d account(s) resolved with exit code %d\n", len(accounts), code)
		return &exitError{code: code}
	}

	printer.Success("synced %d account(s)\n", len(accounts))
	return nil
}
