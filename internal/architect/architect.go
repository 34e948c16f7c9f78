// Package architect wires engines, drivers and workers together and
// supervises them to completion. Architects are plain objects owned by
// the goroutine that builds them: they never block on the work they
// supervise. The owner drives supervision by polling ExitCode, which
// pumps the architect's referent link one message at a time, and the
// architects translate lifecycle intent into worker calls: Stop joins,
// Kill requests cancellation and disowns.
//
// The composition mirrors the runtime tree of one sync action: a
// SyncAccountsArchitect owns account workers (SyncArchitect), each
// account worker owns two driver workers and spawns a folder fan-out
// (SyncFoldersArchitect) per account it syncs, and every fan-out worker
// is again an engine over two driver links. Folder fan-out worker 0
// borrows the account-level driver links instead of opening new
// connections; the extra workers get links of their own.
package architect

import (
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

// Architect is the smallest unit of supervision: one named worker and
// its lifecycle. Composite architects embed it per worker they own.
type Architect struct {
	name   string
	logger *slog.Logger
	worker *concurrency.Worker
}

// New creates an architect that has not started anything yet.
func New(name string, logger *slog.Logger) *Architect {
	return &Architect{name: name, logger: logger}
}

// Name returns the name the worker will run under.
func (a *Architect) Name() string { return a.name }

// Start runs runner on a fresh worker named after the architect.
// Starting twice is a bug; the second call is dropped with a log line
// rather than replacing a live worker.
func (a *Architect) Start(runner concurrency.Runner) {
	if a.worker != nil {
		a.logger.Error("architect started twice, ignoring", "architect", a.name)
		return
	}
	a.worker = concurrency.NewWorker(a.name, a.logger, runner)
	a.worker.Start()
}

// Stop joins the worker and reports how its runner ended. Stopping an
// architect that never started is an error, not a hang.
func (a *Architect) Stop() error {
	if a.worker == nil {
		return fmt.Errorf("architect %s: stop before start", a.name)
	}
	return a.worker.Join()
}

// Kill requests cancellation and disowns the worker. It never waits:
// a runner that ignores its context is left behind, not hung on.
func (a *Architect) Kill() {
	if a.worker == nil {
		return
	}
	a.worker.Kill()
}
