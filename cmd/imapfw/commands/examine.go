package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c4ffein/imapfw/internal/architect"
	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/engine"
	"github.com/c4ffein/imapfw/internal/printer"
	"github.com/c4ffein/imapfw/internal/syncstate"
)

var examineCmd = &cobra.Command{
	Use:   "examine",
	Short: "Examine every configured repository",
	Long: `Examine every configured repository: build its driver, connect,
log in and list the selectable folders.

Each repository runs through the same driver worker the sync uses, one
at a time, so a clean examine means the drivers, the credentials and
the connectivity are all good. Nothing is written to any repository.`,
	RunE: runExamine,
}

func init() {
	rootCmd.AddCommand(examineCmd)
}

func runExamine(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
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

	logger := newLogger(conf.Settings.Logging)
	ctx := context.Background()

	names := make([]string, 0, len(conf.Repositories))
	for name := range conf.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		printer.Step("examining %s\n", name)
		if err := examineRepository(ctx, conf, store, logger, name); err != nil {
			printer.Warning("%s: %v\n", name, err)
			failed++
		}
	}

	if failed > 0 {
		return printer.Error(
			fmt.Sprintf("%d of %d repositories failed", failed, len(names)),
			"See the warnings above for what each failing repository reported.",
			[]string{
				"Check the host, port and credentials of the failing repositories.",
				"Re-run with logging.level: debug for the full exchange.",
			},
		)
	}

	printer.Success("examined %d repositories\n", len(names))
	return nil
}

// examineRepository runs one repository through a driver worker: build,
// connect, login, list. The worker is stopped gracefully on success and
// killed on failure, so a wedged connection never blocks the remaining
// repositories.
func examineRepository(ctx context.Context, conf *config.Config, store *syncstate.Store, logger *slog.Logger, name string) error {
	repo, err := conf.Repository(name)
	if err != nil {
		return err
	}

	arch := architect.NewDriverArchitect("examine."+name, conf, store, logger)
	arch.Start()

	drv := engine.NewDriverClient(arch.Emitter())
	if err := examineFolders(ctx, drv, name, repo.Type == config.TypeIMAP); err != nil {
		arch.Kill()
		return err
	}
	return arch.Stop()
}

func examineFolders(ctx context.Context, drv *engine.DriverClient, name string, isIMAP bool) error {
	if err := drv.BuildDriverFromRepository(ctx, name); err != nil {
		return err
	}
	if err := drv.Connect(ctx); err != nil {
		return err
	}
	if err := drv.Login(ctx); err != nil {
		return err
	}

	if isIMAP {
		caps, err := drv.Capability(ctx)
		if err != nil {
			return err
		}
		printer.Info("  capabilities: %s\n", strings.Join(caps, " "))
	}

	folders, err := drv.Folders(ctx)
	if err != nil {
		return err
	}

	if len(folders) == 0 {
		printer.Info("  (no folders)\n")
		return nil
	}
	for _, folder := range folders {
		printer.Info("  • %s\n", folder)
	}
	return nil
}
