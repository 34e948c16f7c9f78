package architect

import (
	"errors"
	"log/slog"

	"github.com/c4ffein/imapfw/pkg/concurrency"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// EngineArchitect groups one engine worker with the pair of driver
// links the engine messages. It enforces the lifecycle ordering both
// ways: drivers are serving before the engine starts, and the engine is
// observed finished before the drivers it may still be messaging are
// torn down.
type EngineArchitect struct {
	left   DriverHandle
	right  DriverHandle
	engine *Architect
}

// NewEngineArchitect composes an engine worker over two driver links.
func NewEngineArchitect(name string, logger *slog.Logger, left, right DriverHandle) *EngineArchitect {
	return &EngineArchitect{
		left:   left,
		right:  right,
		engine: New(name, logger),
	}
}

// Name returns the engine worker's name.
func (a *EngineArchitect) Name() string { return a.engine.Name() }

// LeftEmitter returns the left driver link's sending end.
func (a *EngineArchitect) LeftEmitter() *edmp.Emitter { return a.left.Emitter() }

// RightEmitter returns the right driver link's sending end.
func (a *EngineArchitect) RightEmitter() *edmp.Emitter { return a.right.Emitter() }

// Start brings both drivers up, then runs the engine.
func (a *EngineArchitect) Start(runner concurrency.Runner) {
	a.left.Start()
	a.right.Start()
	a.engine.Start(runner)
}

// Stop joins the engine first, then stops the drivers.
func (a *EngineArchitect) Stop() error {
	return errors.Join(
		a.engine.Stop(),
		a.left.Stop(),
		a.right.Stop(),
	)
}

// Kill cancels the engine first, then the drivers.
func (a *EngineArchitect) Kill() {
	a.engine.Kill()
	a.left.Kill()
	a.right.Kill()
}
