package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/driver"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// SyncAccounts drains a shared queue of account names. For each account
// it brings both drivers up, computes the folder set to sync, asks its
// referent to fan the folders out, and waits for the fan-out to
// resolve. One failing account does not stop the next.
type SyncAccounts struct {
	conf     *config.Config
	logger   *slog.Logger
	tasks    *edmp.Channel
	left     *DriverClient
	right    *DriverClient
	referent *AccountReferent
}

// NewSyncAccounts assembles the engine. The tasks channel must be
// filled before the engine's worker starts: an empty queue means the
// work is done.
func NewSyncAccounts(
	conf *config.Config,
	logger *slog.Logger,
	tasks *edmp.Channel,
	left, right *DriverClient,
	referent *AccountReferent,
) *SyncAccounts {
	return &SyncAccounts{
		conf:     conf,
		logger:   logger.With("engine", "syncAccounts"),
		tasks:    tasks,
		left:     left,
		right:    right,
		referent: referent,
	}
}

// Run drains the account queue. It has the shape a worker expects and
// always reports a final code to the referent, even on panic-free early
// exits like cancellation.
func (e *SyncAccounts) Run(ctx context.Context) {
	worst := exitcode.Running
	defer func() {
		if !exitcode.Resolved(worst) {
			// A drained queue with nothing to do is a clean run.
			worst = exitcode.OK
		}
		if err := e.referent.Done(worst); err != nil {
			e.logger.Error("reporting completion failed", "error", err)
		}
	}()

	for ctx.Err() == nil {
		task, ok := e.tasks.Next()
		if !ok {
			return
		}
		account, ok := task.(string)
		if !ok {
			e.logger.Error("dropping task of unexpected type", "type", fmt.Sprintf("%T", task))
			worst = exitcode.Worst(worst, exitcode.Failure)
			continue
		}

		if err := e.syncAccount(ctx, account); err != nil {
			e.logger.Error("account sync failed", "account", account, "error", err)
			worst = exitcode.Worst(worst, exitcode.Failure)
			continue
		}
		worst = exitcode.Worst(worst, exitcode.OK)
	}
}

func (e *SyncAccounts) syncAccount(ctx context.Context, account string) error {
	e.logger.Info("syncing account", "account", account)

	acc, err := e.conf.Account(account)
	if err != nil {
		return err
	}

	// Queue the bring-up of both sides without waiting; the folders
	// calls below fence it.
	if err := e.prepare(account, driver.SideLeft, e.left); err != nil {
		return err
	}
	if err := e.prepare(account, driver.SideRight, e.right); err != nil {
		return err
	}

	leftFolders, err := e.left.Folders(ctx)
	if err != nil {
		return fmt.Errorf("left folders: %w", err)
	}
	rightFolders, err := e.right.Folders(ctx)
	if err != nil {
		return fmt.Errorf("right folders: %w", err)
	}

	folders := acc.Folders.Apply(unionFolders(leftFolders, rightFolders))
	if len(folders) == 0 {
		e.logger.Info("no folders to sync", "account", account)
		return nil
	}

	workers, err := e.folderWorkerCeiling(acc, len(folders))
	if err != nil {
		return err
	}

	e.logger.Info("fanning out folders",
		"account", account, "folders", len(folders), "workers", workers)
	if err := e.referent.SyncFolders(ctx, account, folders, workers); err != nil {
		return fmt.Errorf("starting folder workers: %w", err)
	}

	for {
		done, err := e.referent.AreSyncFoldersDone(ctx)
		if err != nil {
			return err
		}
		if done {
			break
		}
		if err := nap(ctx); err != nil {
			return err
		}
	}

	e.logger.Info("account folders done", "account", account)
	return nil
}

// prepare queues buildDriver, connect and login for one side.
func (e *SyncAccounts) prepare(account, side string, drv *DriverClient) error {
	if err := drv.BuildDriverAsync(account, side); err != nil {
		return err
	}
	if err := drv.ConnectAsync(); err != nil {
		return err
	}
	return drv.LoginAsync()
}

// folderWorkerCeiling caps the fan-out at the folder count and at what
// both repositories allow concurrently.
func (e *SyncAccounts) folderWorkerCeiling(acc config.Account, folders int) (int, error) {
	left, err := e.conf.Repository(acc.Left)
	if err != nil {
		return 0, err
	}
	right, err := e.conf.Repository(acc.Right)
	if err != nil {
		return 0, err
	}
	return min(folders, left.MaxConnections, right.MaxConnections), nil
}

// unionFolders merges both sides' folder lists, deduplicated and
// sorted.
func unionFolders(left, right []string) []string {
	seen := make(map[string]struct{}, len(left)+len(right))
	union := make([]string, 0, len(left)+len(right))
	for _, folders := range [][]string{left, right} {
		for _, folder := range folders {
			if _, ok := seen[folder]; ok {
				continue
			}
			seen[folder] = struct{}{}
			union = append(union, folder)
		}
	}
	sort.Strings(union)
	return union
}
