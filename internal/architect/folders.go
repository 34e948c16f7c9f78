package architect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/engine"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/concurrency"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// folderWorker is one unit of a fan-out: a folder engine over its pair
// of driver links, plus the referent link it reports its exit code on.
type folderWorker struct {
	name     string
	arch     *EngineArchitect
	receiver *edmp.Receiver
	code     int
}

// SyncFoldersArchitect fans one account's folders out over a pool of
// folder engine workers draining a shared task queue. Worker 0 borrows
// the account-level driver links (the account engine does not touch
// them while the fan-out runs, and a driver connection is exclusively
// owned); each extra worker opens links of its own.
type SyncFoldersArchitect struct {
	name    string
	account string
	conf    *config.Config
	store   *syncstate.Store
	logger  *slog.Logger

	workers  []*folderWorker
	resolved bool
	code     int
}

// NewSyncFoldersArchitect prepares a fan-out for one account.
func NewSyncFoldersArchitect(name, account string, conf *config.Config, store *syncstate.Store, logger *slog.Logger) *SyncFoldersArchitect {
	return &SyncFoldersArchitect{
		name:    name,
		account: account,
		conf:    conf,
		store:   store,
		logger:  logger,
		code:    exitcode.Running,
	}
}

// Start fills the folder queue, then spawns min(maxWorkers,
// len(folders)) folder workers pulling from it. The queue is complete
// before the first worker starts, so a fast worker draining it early
// sees every folder.
func (a *SyncFoldersArchitect) Start(folders []string, maxWorkers int, leftEmitter, rightEmitter *edmp.Emitter) error {
	if len(folders) == 0 {
		return fmt.Errorf("%s: no folders to fan out", a.name)
	}
	if maxWorkers < 1 {
		return fmt.Errorf("%s: fan-out needs at least one worker, got %d", a.name, maxWorkers)
	}

	queue := concurrency.NewQueue()
	for _, folder := range folders {
		if err := queue.Put(folder); err != nil {
			return fmt.Errorf("%s: queueing folder %s: %w", a.name, folder, err)
		}
	}

	for i := 0; i < min(maxWorkers, len(folders)); i++ {
		a.startWorker(i, queue, leftEmitter, rightEmitter)
	}
	a.logger.Info("folder workers started",
		"account", a.account, "folders", len(folders), "workers", len(a.workers))
	return nil
}

func (a *SyncFoldersArchitect) startWorker(i int, queue *concurrency.Queue, leftEmitter, rightEmitter *edmp.Emitter) {
	name := fmt.Sprintf("%s.%d", a.name, i)

	var left, right DriverHandle
	if i == 0 {
		left = NewReuseDriverArchitect(leftEmitter)
		right = NewReuseDriverArchitect(rightEmitter)
	} else {
		left = NewDriverArchitect(name+".driver.left", a.conf, a.store, a.logger)
		right = NewDriverArchitect(name+".driver.right", a.conf, a.store, a.logger)
	}

	receiver, emitter := edmp.NewPair(name+".referent", a.logger)
	w := &folderWorker{
		name:     name,
		arch:     NewEngineArchitect(name, a.logger, left, right),
		receiver: receiver,
		code:     exitcode.Running,
	}
	receiver.Accept(engine.TopicFolderEngineDone, func(args ...any) (any, error) {
		code, err := intArg(args, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", w.name, engine.TopicFolderEngineDone, err)
		}
		w.code = code
		return nil, nil
	})

	eng := engine.NewSyncFolders(a.account, a.logger, edmp.NewChannel(queue),
		engine.NewDriverClient(left.Emitter()), engine.NewDriverClient(right.Emitter()),
		engine.NewFolderReferent(emitter), a.store)
	w.arch.Start(eng.Run)
	a.workers = append(a.workers, w)
}

// ExitCode pumps each unresolved worker's referent one message and
// folds finished workers into the aggregate, stopping them as they
// resolve: a borrowed link is back with its owner as soon as worker 0
// is folded. The aggregate stays Running until every worker resolved
// and never changes afterwards.
func (a *SyncFoldersArchitect) ExitCode(ctx context.Context) int {
	if a.resolved {
		return a.code
	}

	pending := a.workers[:0]
	for _, w := range a.workers {
		w.receiver.React(ctx)
		if !exitcode.Resolved(w.code) {
			pending = append(pending, w)
			continue
		}
		code := w.code
		if err := w.arch.Stop(); err != nil {
			a.logger.Error("folder worker teardown failed", "worker", w.name, "error", err)
			code = exitcode.Worst(code, exitcode.Failure)
		}
		a.logger.Debug("folder worker resolved", "worker", w.name, "code", code)
		a.code = exitcode.Worst(a.code, code)
	}
	a.workers = pending

	if len(a.workers) > 0 {
		return exitcode.Running
	}
	a.resolved = true
	if !exitcode.Resolved(a.code) {
		a.code = exitcode.NeverResolved
	}
	return a.code
}

// Kill cancels every remaining worker without waiting and resolves the
// fan-out as failed.
func (a *SyncFoldersArchitect) Kill() {
	for _, w := range a.workers {
		w.arch.Kill()
	}
	a.workers = nil
	if !a.resolved {
		a.resolved = true
		a.code = exitcode.Worst(a.code, exitcode.Failure)
	}
}
