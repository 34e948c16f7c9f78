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

// SyncArchitect runs one account worker: a SyncAccounts engine over its
// own pair of driver links, plus the referent link the engine reports
// on. The worker drains the shared account queue, so one architect may
// sync several accounts in a row, rebuilding its drivers for each and
// spawning one folder fan-out per account.
type SyncArchitect struct {
	name   string
	conf   *config.Config
	store  *syncstate.Store
	logger *slog.Logger

	engineArch *EngineArchitect
	receiver   *edmp.Receiver
	emitter    *edmp.Emitter

	fanout      *SyncFoldersArchitect
	fanouts     int
	engineCode  int
	foldersCode int
	resolved    bool
	final       int
}

// NewSyncArchitect builds the account worker's links and registers the
// referent handlers. Nothing runs until Start.
func NewSyncArchitect(name string, conf *config.Config, store *syncstate.Store, logger *slog.Logger) *SyncArchitect {
	left := NewDriverArchitect(name+".driver.left", conf, store, logger)
	right := NewDriverArchitect(name+".driver.right", conf, store, logger)
	receiver, emitter := edmp.NewPair(name+".referent", logger)

	a := &SyncArchitect{
		name:        name,
		conf:        conf,
		store:       store,
		logger:      logger,
		engineArch:  NewEngineArchitect(name, logger, left, right),
		receiver:    receiver,
		emitter:     emitter,
		engineCode:  exitcode.Running,
		foldersCode: exitcode.OK,
	}
	a.acceptReferent()
	return a
}

// Name returns the account worker's name.
func (a *SyncArchitect) Name() string { return a.name }

// Start runs the SyncAccounts engine on the account worker, draining
// tasks. The queue must be filled before Start.
func (a *SyncArchitect) Start(tasks *concurrency.Queue) {
	eng := engine.NewSyncAccounts(a.conf, a.logger, edmp.NewChannel(tasks),
		engine.NewDriverClient(a.engineArch.LeftEmitter()),
		engine.NewDriverClient(a.engineArch.RightEmitter()),
		engine.NewAccountReferent(a.emitter))
	a.engineArch.Start(eng.Run)
}

func (a *SyncArchitect) acceptReferent() {
	a.receiver.AcceptDoc(engine.TopicSyncFolders,
		"fans the account's folders out over folder workers",
		func(args ...any) (any, error) {
			account, err := stringArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", engine.TopicSyncFolders, err)
			}
			folders, err := stringSliceArg(args, 1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", engine.TopicSyncFolders, err)
			}
			maxWorkers, err := intArg(args, 2)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", engine.TopicSyncFolders, err)
			}
			return nil, a.startFanout(account, folders, maxWorkers)
		})

	a.receiver.AcceptDoc(engine.TopicAreSyncFoldersDone,
		"reports whether the current folder fan-out has resolved",
		func(...any) (any, error) {
			return a.fanout == nil, nil
		})

	a.receiver.AcceptDoc(engine.TopicAccountEngineDone,
		"records the account engine's final exit code",
		func(args ...any) (any, error) {
			code, err := intArg(args, 0)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", engine.TopicAccountEngineDone, err)
			}
			a.engineCode = code
			return nil, nil
		})
}

// startFanout spins up the folder fan-out for one account, lending it
// the account-level driver links. The error return crosses back to the
// engine, which degrades the account to a failure and moves on.
func (a *SyncArchitect) startFanout(account string, folders []string, maxWorkers int) error {
	if a.fanout != nil {
		return fmt.Errorf("%s: fan-out for %s requested while another is running", a.name, account)
	}

	fanout := NewSyncFoldersArchitect(
		fmt.Sprintf("%s.folders.%d", a.name, a.fanouts), account, a.conf, a.store, a.logger)
	a.fanouts++
	if err := fanout.Start(folders, maxWorkers,
		a.engineArch.LeftEmitter(), a.engineArch.RightEmitter()); err != nil {
		fanout.Kill()
		return err
	}
	a.fanout = fanout
	return nil
}

// ExitCode pumps the referent one message, supervises the running
// fan-out, and returns Running until the account engine reported done
// and the last fan-out resolved. Resolution stops the engine and the
// drivers; the final code is the worst of the engine's own code and
// every fan-out aggregate, and never changes once returned.
//
// A panic anywhere under the pump is a supervision failure: everything
// still running is killed and the architect resolves to Failure.
func (a *SyncArchitect) ExitCode(ctx context.Context) (code int) {
	if a.resolved {
		return a.final
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("supervision failure, killing the account worker",
				"architect", a.name, "panic", r)
			a.Kill()
			code = a.final
		}
	}()

	a.receiver.React(ctx)

	if a.fanout != nil {
		if fcode := a.fanout.ExitCode(ctx); exitcode.Resolved(fcode) {
			a.foldersCode = exitcode.Worst(a.foldersCode, fcode)
			a.fanout = nil
		}
	}

	if !exitcode.Resolved(a.engineCode) || a.fanout != nil {
		return exitcode.Running
	}

	a.resolved = true
	a.final = exitcode.Worst(a.engineCode, a.foldersCode)
	if err := a.engineArch.Stop(); err != nil {
		a.logger.Error("account worker teardown failed", "architect", a.name, "error", err)
		a.final = exitcode.Worst(a.final, exitcode.Failure)
	}
	return a.final
}

// Kill cancels the fan-out, the engine and the drivers without waiting
// and resolves the architect as failed.
func (a *SyncArchitect) Kill() {
	if a.fanout != nil {
		a.fanout.Kill()
		a.fanout = nil
	}
	a.engineArch.Kill()
	if !a.resolved {
		a.resolved = true
		a.final = exitcode.Failure
	}
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i+1, args[i])
	}
	return s, nil
}

func stringSliceArg(args []any, i int) ([]string, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d", i+1)
	}
	s, ok := args[i].([]string)
	if !ok {
		return nil, fmt.Errorf("argument %d: want []string, got %T", i+1, args[i])
	}
	return s, nil
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	n, ok := args[i].(int)
	if !ok {
		return 0, fmt.Errorf("argument %d: want int, got %T", i+1, args[i])
	}
	return n, nil
}
