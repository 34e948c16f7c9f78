package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Worker executes a Runner on its own goroutine under a stable name.
// The lifecycle is created → started → (joined | killed); Start and Kill are
// idempotent. A panic inside the runner is recovered and reported by Join;
// a crashing worker never takes the process down.
type Worker struct {
	name   string
	logger *slog.Logger
	runner Runner

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	started bool
	killed  bool
	runErr  error
}

// NewWorker creates a worker without running anything yet.
func NewWorker(name string, logger *slog.Logger, runner Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		name:   name,
		logger: logger.With("worker", name),
		runner: runner,
		ctx:    WithWorker(ctx, name),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Name returns the worker's stable identifier.
func (w *Worker) Name() string {
	return w.name
}

// Start begins execution of the runner. Calling Start more than once, or
// after Kill, is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.started || w.killed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("worker starting")
	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				w.mu.Lock()
				w.runErr = fmt.Errorf("worker %s panicked: %v", w.name, r)
				w.mu.Unlock()
				w.logger.Error("worker panicked", "panic", r)
			}
		}()
		w.runner(w.ctx)
	}()
}

// Join blocks until the runner has returned and reports the recovered panic,
// if any. It is the only call that guarantees the worker has finished.
func (w *Worker) Join() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return fmt.Errorf("worker %s: join before start", w.name)
	}

	<-w.done
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

// Kill requests cancellation and disowns the worker. The runner's context is
// canceled; whether and when the goroutine actually stops is up to the
// runner. Kill never blocks and never guarantees termination.
func (w *Worker) Kill() {
	w.mu.Lock()
	if w.killed {
		w.mu.Unlock()
		return
	}
	w.killed = true
	w.mu.Unlock()

	w.logger.Info("worker killed, disowning")
	w.cancel()
}
