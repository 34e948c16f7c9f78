package edmp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

// Emitter is the sending end of a link. It is a plain typed client: every
// delivery mode is an explicit method, and unknown topics fail on the
// receiving side rather than at a dynamic call site.
//
// An emitter belongs to one worker at a time. Synchronous replies are routed
// by arrival order, so two workers calling through the same emitter would
// steal each other's results.
type Emitter struct {
	name   string
	link   *link
	logger *slog.Logger
	tlog   *topicLog
}

// Name returns the link name.
func (e *Emitter) Name() string { return e.name }

// Emit sends topic asynchronously and returns once the message is queued.
// The handler's return value lands in the receiver's cache; its failure is
// logged on the receiving side and never surfaces here. The only possible
// error is local: args that cannot cross a worker boundary.
func (e *Emitter) Emit(topic string, args ...any) error {
	return e.send(topic, args)
}

// Call sends topic synchronously: it blocks until the handler's result or
// failure crosses back, or ctx is canceled. A 1-tuple result collapses to
// its single value; longer results come back as a Tuple.
//
// Call fails immediately with ErrSameWorkerSync when issued from the worker
// serving this link's receiver.
func (e *Emitter) Call(ctx context.Context, topic string, args ...any) (any, error) {
	if err := e.guardSync(ctx, topic); err != nil {
		return nil, err
	}
	if err := e.send(topic+syncSuffix, args); err != nil {
		return nil, err
	}
	return e.await(ctx, topic)
}

// Cached synchronously reads the value the last asynchronous invocation of
// topic left in the receiver's cache. It fails with a TopicError when
// nothing was cached yet. The handler is not invoked.
func (e *Emitter) Cached(ctx context.Context, topic string) (any, error) {
	if err := e.guardSync(ctx, topic); err != nil {
		return nil, err
	}
	if err := e.send(cachedPrefix+topic, nil); err != nil {
		return nil, err
	}
	return e.await(ctx, topic)
}

// StopServing tells the receiver to stop after the messages already queued
// ahead of it. It does not wait for the receiver to comply.
func (e *Emitter) StopServing() error {
	return e.send(TopicStopServing, nil)
}

// Help returns the receiver's registration table: topic names mapped to the
// doc strings provided at registration.
func (e *Emitter) Help(ctx context.Context) (map[string]string, error) {
	v, err := e.Call(ctx, topicHelp)
	if err != nil {
		return nil, err
	}
	help, ok := v.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("help on %s: unexpected reply %T", e.name, v)
	}
	return help, nil
}

func (e *Emitter) send(topic string, args []any) error {
	msg := Message{ID: uuid.NewString(), Topic: topic, Args: args}
	e.tlog.observe(topic, "id", msg.ID, "args", args)
	if err := e.link.event.Put(msg); err != nil {
		return fmt.Errorf("emit %s on %s: %w", topic, e.name, err)
	}
	return nil
}

// await polls the failure queue first, then the result queue, pacing the
// loop with the link's poll interval. Failure-first keeps a queued failure
// from being shadowed by a later result.
func (e *Emitter) await(ctx context.Context, topic string) (any, error) {
	for {
		if v, ok := e.link.fault.TryGet(); ok {
			f, isFailure := v.(remoteFailure)
			if !isFailure {
				return nil, fmt.Errorf("awaiting %s on %s: malformed failure %v", topic, e.name, v)
			}
			return nil, e.link.registry.rebuild(f.Kind, f.Reason)
		}

		if v, ok := e.link.result.TryGet(); ok {
			t, isTuple := v.(Tuple)
			if !isTuple {
				return nil, fmt.Errorf("awaiting %s on %s: malformed result %v", topic, e.name, v)
			}
			return unwrap(t), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("awaiting %s on %s: %w", topic, e.name, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (e *Emitter) guardSync(ctx context.Context, topic string) error {
	caller := concurrency.WorkerFromContext(ctx)
	if caller == "" {
		return nil
	}
	if serving := e.link.servingWorker(); serving == caller {
		return fmt.Errorf("%s on %s from worker %s: %w", topic, e.name, caller, ErrSameWorkerSync)
	}
	return nil
}
