package architect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/concurrency"
)

// SyncAccountsArchitect is the top-level supervisor of one sync run: a
// pool of account workers draining a shared queue of account names.
type SyncAccountsArchitect struct {
	conf   *config.Config
	store  *syncstate.Store
	logger *slog.Logger

	children []*SyncArchitect
}

// NewSyncAccountsArchitect prepares the supervisor.
func NewSyncAccountsArchitect(conf *config.Config, store *syncstate.Store, logger *slog.Logger) *SyncAccountsArchitect {
	return &SyncAccountsArchitect{conf: conf, store: store, logger: logger}
}

// Start fills the shared account queue, then spawns min(maxConcurrent,
// len(accounts)) account workers pulling from it. The queue is complete
// before the first worker starts, so a worker that finishes its first
// account early sees every remaining task.
func (a *SyncAccountsArchitect) Start(accounts []string, maxConcurrent int) error {
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts to sync")
	}
	if maxConcurrent < 1 {
		return fmt.Errorf("need at least one account worker, got %d", maxConcurrent)
	}

	queue := concurrency.NewQueue()
	for _, account := range accounts {
		if err := queue.Put(account); err != nil {
			return fmt.Errorf("queueing account %s: %w", account, err)
		}
	}

	for i := 0; i < min(maxConcurrent, len(accounts)); i++ {
		child := NewSyncArchitect(fmt.Sprintf("Account.%d", i), a.conf, a.store, a.logger)
		child.Start(queue)
		a.children = append(a.children, child)
	}
	a.logger.Info("account workers started",
		"accounts", len(accounts), "workers", len(a.children))
	return nil
}

// Run supervises the workers to completion: each polling round pumps
// every remaining child once, drops the ones that resolved, and keeps
// the worst code seen. Cancellation kills whatever still runs and the
// run reports a failure.
func (a *SyncAccountsArchitect) Run(ctx context.Context) int {
	worst := exitcode.Running

	for len(a.children) > 0 {
		if ctx.Err() != nil {
			a.logger.Warn("canceled, killing remaining account workers",
				"remaining", len(a.children))
			a.Kill()
			return exitcode.Worst(worst, exitcode.Failure)
		}

		pending := a.children[:0]
		for _, child := range a.children {
			code := child.ExitCode(ctx)
			if !exitcode.Resolved(code) {
				pending = append(pending, child)
				continue
			}
			a.logger.Info("account worker resolved", "worker", child.Name(), "code", code)
			worst = exitcode.Worst(worst, code)
		}
		a.children = pending
	}

	if !exitcode.Resolved(worst) {
		// No child ever reported: a supervision bug, not a sync failure.
		return exitcode.NeverResolved
	}
	return worst
}

// Kill force-kills every remaining account worker.
func (a *SyncAccountsArchitect) Kill() {
	for _, child := range a.children {
		child.Kill()
	}
	a.children = nil
}
