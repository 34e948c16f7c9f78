package architect

import (
	"log/slog"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/driver"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// topicLogout is the driver runner's connection-teardown topic, queued
// ahead of stopServing so a graceful stop closes the connection first.
const topicLogout = "logout"

// DriverHandle is one driver link as the engine-level architects see
// it: something that can be started, lends its emitter out, and is
// stopped or killed with the rest of the unit. DriverArchitect owns a
// real worker behind the handle; ReuseDriverArchitect borrows one.
type DriverHandle interface {
	Start()
	Emitter() *edmp.Emitter
	Stop() error
	Kill()
}

// DriverArchitect owns one driver worker: the link, the runner serving
// it and the worker the runner runs on.
type DriverArchitect struct {
	arch    *Architect
	runner  *driver.Runner
	emitter *edmp.Emitter
}

// NewDriverArchitect builds the link and its runner without starting
// the worker.
func NewDriverArchitect(name string, conf *config.Config, store *syncstate.Store, logger *slog.Logger) *DriverArchitect {
	receiver, emitter := edmp.NewPair(name, logger)
	return &DriverArchitect{
		arch:    New(name, logger),
		runner:  driver.NewRunner(receiver, conf, store, logger),
		emitter: emitter,
	}
}

// Start begins serving the link.
func (d *DriverArchitect) Start() { d.arch.Start(d.runner.Run) }

// Emitter returns the sending end of the link.
func (d *DriverArchitect) Emitter() *edmp.Emitter { return d.emitter }

// Stop queues a logout and a stop behind whatever work is pending, then
// joins the worker. The connection is closed by the time Stop returns.
func (d *DriverArchitect) Stop() error {
	if err := d.emitter.Emit(topicLogout); err != nil {
		return err
	}
	if err := d.emitter.StopServing(); err != nil {
		return err
	}
	return d.arch.Stop()
}

// Kill asks the worker to stop without waiting for pending work: the
// stop marker is queued best-effort and the worker's context is
// canceled, cutting short whatever operation it is in.
func (d *DriverArchitect) Kill() {
	_ = d.emitter.StopServing()
	d.arch.Kill()
}

// ReuseDriverArchitect lends an already-running driver link to a nested
// fan-out. Stopping the fan-out hands the link back untouched: the
// owning account architect may still feed it further accounts and tears
// it down itself once the account engine is done.
type ReuseDriverArchitect struct {
	emitter *edmp.Emitter
}

// NewReuseDriverArchitect wraps the borrowed emitter.
func NewReuseDriverArchitect(emitter *edmp.Emitter) *ReuseDriverArchitect {
	return &ReuseDriverArchitect{emitter: emitter}
}

// Start is a no-op: the borrowed worker is already serving.
func (d *ReuseDriverArchitect) Start() {}

// Emitter returns the borrowed sending end.
func (d *ReuseDriverArchitect) Emitter() *edmp.Emitter { return d.emitter }

// Stop is a no-op: the link belongs to the account architect, which
// outlives the fan-out.
func (d *ReuseDriverArchitect) Stop() error { return nil }

// Kill stops the borrowed worker's serving. Only the catastrophic path
// comes here, and it takes the link's owner down with it.
func (d *ReuseDriverArchitect) Kill() {
	_ = d.emitter.StopServing()
}
