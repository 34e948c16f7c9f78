package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c4ffein/imapfw/internal/driver"
	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// SyncFolders drains a shared queue of folder names for one account and
// propagates messages both ways: whatever exists on one side and is not
// recorded in the sync state gets fetched, appended to the other side,
// and recorded. Deletions are not propagated.
type SyncFolders struct {
	account  string
	logger   *slog.Logger
	tasks    *edmp.Channel
	left     *DriverClient
	right    *DriverClient
	referent *FolderReferent
	store    *syncstate.Store
}

// NewSyncFolders assembles the engine. Like the account engine, the
// tasks channel must be filled before the worker starts.
func NewSyncFolders(
	account string,
	logger *slog.Logger,
	tasks *edmp.Channel,
	left, right *DriverClient,
	referent *FolderReferent,
	store *syncstate.Store,
) *SyncFolders {
	return &SyncFolders{
		account:  account,
		logger:   logger.With("engine", "syncFolders", "account", account),
		tasks:    tasks,
		left:     left,
		right:    right,
		referent: referent,
		store:    store,
	}
}

// Run readies both drivers and drains the folder queue, reporting a
// final code to the referent on the way out.
func (e *SyncFolders) Run(ctx context.Context) {
	worst := exitcode.Running
	defer func() {
		if !exitcode.Resolved(worst) {
			worst = exitcode.OK
		}
		if err := e.referent.Done(worst); err != nil {
			e.logger.Error("reporting completion failed", "error", err)
		}
	}()

	if err := e.ensureReady(ctx, driver.SideLeft, e.left); err != nil {
		e.logger.Error("left driver not ready", "error", err)
		worst = exitcode.Failure
		return
	}
	if err := e.ensureReady(ctx, driver.SideRight, e.right); err != nil {
		e.logger.Error("right driver not ready", "error", err)
		worst = exitcode.Failure
		return
	}

	for ctx.Err() == nil {
		task, ok := e.tasks.Next()
		if !ok {
			return
		}
		folder, ok := task.(string)
		if !ok {
			e.logger.Error("dropping task of unexpected type", "type", fmt.Sprintf("%T", task))
			worst = exitcode.Worst(worst, exitcode.Failure)
			continue
		}

		if err := e.syncFolder(ctx, folder); err != nil {
			e.logger.Error("folder sync failed", "folder", folder, "error", err)
			worst = exitcode.Worst(worst, exitcode.Failure)
			continue
		}
		worst = exitcode.Worst(worst, exitcode.OK)
	}
}

// ensureReady brings one side up unless it inherited an already-built
// driver from the account worker.
func (e *SyncFolders) ensureReady(ctx context.Context, side string, drv *DriverClient) error {
	built, err := drv.IsDriverBuilt(ctx)
	if err != nil {
		return err
	}
	if built {
		return nil
	}
	if err := drv.BuildDriver(ctx, e.account, side); err != nil {
		return err
	}
	if err := drv.Connect(ctx); err != nil {
		return err
	}
	return drv.Login(ctx)
}

func (e *SyncFolders) syncFolder(ctx context.Context, folder string) error {
	leftCount, err := e.left.Select(ctx, folder)
	if err != nil {
		return fmt.Errorf("selecting left: %w", err)
	}
	rightCount, err := e.right.Select(ctx, folder)
	if err != nil {
		return fmt.Errorf("selecting right: %w", err)
	}
	e.logger.Debug("folder selected",
		"folder", folder, "leftMessages", leftCount, "rightMessages", rightCount)

	leftUIDs, err := e.left.SearchUIDs(ctx)
	if err != nil {
		return fmt.Errorf("searching left: %w", err)
	}
	rightUIDs, err := e.right.SearchUIDs(ctx)
	if err != nil {
		return fmt.Errorf("searching right: %w", err)
	}

	known, err := e.store.Pairs(ctx, e.account, folder)
	if err != nil {
		return err
	}
	knownLeft := make(map[uint32]struct{}, len(known))
	knownRight := make(map[uint32]struct{}, len(known))
	for _, pair := range known {
		knownLeft[pair.Left] = struct{}{}
		knownRight[pair.Right] = struct{}{}
	}

	toRight, err := e.propagate(ctx, folder, propagation{
		uids: leftUIDs, seen: knownLeft, seenOther: knownRight,
		from: e.left, to: e.right, known: known, fromLeft: true,
	})
	if err != nil {
		return fmt.Errorf("propagating left to right: %w", err)
	}
	toLeft, err := e.propagate(ctx, folder, propagation{
		uids: rightUIDs, seen: knownRight, seenOther: knownLeft,
		from: e.right, to: e.left, known: known, fromLeft: false,
	})
	if err != nil {
		return fmt.Errorf("propagating right to left: %w", err)
	}

	if toRight > 0 || toLeft > 0 {
		e.logger.Info("folder synced",
			"folder", folder, "copiedToRight", toRight, "copiedToLeft", toLeft)
	} else {
		e.logger.Debug("folder already in sync", "folder", folder)
	}
	return nil
}

// propagation carries one direction of a folder pass.
type propagation struct {
	uids      []uint32
	seen      map[uint32]struct{} // UIDs already recorded on the reading side
	seenOther map[uint32]struct{} // UIDs already recorded on the writing side
	from      *DriverClient
	to        *DriverClient
	known     map[string]syncstate.UIDPair
	fromLeft  bool
}

// propagate copies every unrecorded message of one side to the other
// and records the placements. It returns how many messages crossed.
func (e *SyncFolders) propagate(ctx context.Context, folder string, p propagation) (int, error) {
	copied := 0
	for _, uid := range p.uids {
		if _, ok := p.seen[uid]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		msg, err := p.from.Fetch(ctx, uid)
		if err != nil {
			return copied, err
		}

		if pair, ok := p.known[msg.ID]; ok {
			// The message is on both sides already; it just changed UID
			// on this one (moved, re-uploaded). Refresh the record.
			if p.fromLeft {
				pair.Left = uid
			} else {
				pair.Right = uid
			}
			if err := e.store.AddPair(ctx, e.account, folder, msg.ID, pair); err != nil {
				return copied, err
			}
			p.known[msg.ID] = pair
			p.seen[uid] = struct{}{}
			continue
		}

		otherUID, err := p.to.Append(ctx, msg)
		if err != nil {
			return copied, fmt.Errorf("appending %s: %w", msg.ID, err)
		}

		pair := syncstate.UIDPair{Left: uid, Right: otherUID}
		if !p.fromLeft {
			pair = syncstate.UIDPair{Left: otherUID, Right: uid}
		}
		if err := e.store.AddPair(ctx, e.account, folder, msg.ID, pair); err != nil {
			return copied, err
		}
		p.known[msg.ID] = pair
		p.seen[uid] = struct{}{}
		p.seenOther[otherUID] = struct{}{}
		copied++
	}
	return copied, nil
}
