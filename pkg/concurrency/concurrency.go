// Package concurrency provides the goroutine-backed primitives the framework
// runs on: named workers with a start/join/kill lifecycle, unbounded FIFO
// queues guarded by a transportability check, and locks with scoped
// acquisition.
//
// Workers are deliberately thin wrappers over goroutines. Kill is a
// cancellation request, never a termination guarantee: a killed worker is
// disowned and keeps running until its runner observes the canceled context
// or returns on its own. Join is the only call that guarantees a worker has
// finished.
package concurrency

import "context"

// Runner is the body of a worker. The context carries the worker's identity
// (see WorkerFromContext) and is canceled when the worker is killed.
type Runner func(ctx context.Context)

type workerNameKey struct{}

// WithWorker returns a context carrying name as the executing worker's
// identity. Workers stamp their runner context automatically; tests and
// embedded runners can stamp their own.
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerNameKey{}, name)
}

// WorkerFromContext returns the name of the worker the context belongs to,
// or "" when the context is not tied to a worker (e.g. the main goroutine).
func WorkerFromContext(ctx context.Context) string {
	name, _ := ctx.Value(workerNameKey{}).(string)
	return name
}
