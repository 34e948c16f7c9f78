package edmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/pkg/concurrency"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// servePair builds a link, lets setup register handlers, then starts a
// dedicated worker serving the receiver. The worker is stopped and joined at
// cleanup.
func servePair(t *testing.T, name string, setup func(r *Receiver)) *Emitter {
	t.Helper()
	r, e := NewPair(name, discardLogger())
	setup(r)

	w := concurrency.NewWorker(name+".worker", discardLogger(), r.Serve)
	w.Start()
	t.Cleanup(func() {
		_ = e.StopServing()
		require.NoError(t, w.Join())
	})
	return e
}

func TestEmitIsAsyncAndCaches(t *testing.T) {
	r, e := NewPair("driver", discardLogger())

	var calls atomic.Int32
	r.Accept("connect", func(args ...any) (any, error) {
		calls.Add(1)
		return "connected", nil
	})

	require.NoError(t, e.Emit("connect", "imap.example.org", 143))
	assert.Equal(t, int32(0), calls.Load(), "Emit must not invoke the handler inline")

	require.True(t, r.React(testContext(t)))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Tuple{"connected"}, r.cache["connect"])
}

func TestPerLinkFIFO(t *testing.T) {
	r, e := NewPair("driver", discardLogger())

	var got []int
	r.Accept("step", func(args ...any) (any, error) {
		got = append(got, args[0].(int))
		return nil, nil
	})

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, e.Emit("step", i))
	}
	ctx := testContext(t)
	for i := 0; i < n; i++ {
		require.True(t, r.React(ctx))
	}

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestAcceptPrependsArguments(t *testing.T) {
	r, e := NewPair("driver", discardLogger())

	var got []any
	r.Accept("build", func(args ...any) (any, error) {
		got = args
		return nil, nil
	}, "fixed", 1)

	require.NoError(t, e.Emit("build", "sent"))
	require.True(t, r.React(testContext(t)))
	assert.Equal(t, []any{"fixed", 1, "sent"}, got)
}

func TestCallRoundTrip(t *testing.T) {
	e := servePair(t, "driver", func(r *Receiver) {
		r.Accept("add", func(args ...any) (any, error) {
			return args[0].(int) + args[1].(int), nil
		})
		r.Accept("pair", func(args ...any) (any, error) {
			return Tuple{"left", "right"}, nil
		})
		r.Accept("nothing", func(args ...any) (any, error) {
			return nil, nil
		})
	})
	ctx := testContext(t)

	t.Run("single value unwrapped", func(t *testing.T) {
		v, err := e.Call(ctx, "add", 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})

	t.Run("multi value stays a tuple", func(t *testing.T) {
		v, err := e.Call(ctx, "pair")
		require.NoError(t, err)
		assert.Equal(t, Tuple{"left", "right"}, v)
	})

	t.Run("nil result crosses as nil", func(t *testing.T) {
		v, err := e.Call(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("unknown topic fails with TopicError", func(t *testing.T) {
		_, err := e.Call(ctx, "missing")
		var te *TopicError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, te.Reason, "missing")
	})
}

func TestCachedReads(t *testing.T) {
	var calls atomic.Int32
	e := servePair(t, "driver", func(r *Receiver) {
		r.Accept("connect", func(args ...any) (any, error) {
			calls.Add(1)
			return "connected", nil
		})
	})
	ctx := testContext(t)

	t.Run("before any async send", func(t *testing.T) {
		_, err := e.Cached(ctx, "connect")
		var te *TopicError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, te.Reason, "no cached value")
	})

	t.Run("after an async send", func(t *testing.T) {
		require.NoError(t, e.Emit("connect"))
		// FIFO fences the cached read behind the async invocation.
		v, err := e.Cached(ctx, "connect")
		require.NoError(t, err)
		assert.Equal(t, "connected", v)
		assert.Equal(t, int32(1), calls.Load(), "cached read must not re-invoke the handler")
	})
}

func TestAsyncFailureIsSwallowed(t *testing.T) {
	e := servePair(t, "driver", func(r *Receiver) {
		r.Accept("flaky", func(args ...any) (any, error) {
			return nil, errors.New("wire broke")
		})
		r.Accept("ping", func(args ...any) (any, error) {
			return "pong", nil
		})
	})
	ctx := testContext(t)

	require.NoError(t, e.Emit("flaky"))

	// The loop survives the failure and the failed topic cached nothing.
	v, err := e.Call(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", v)

	_, err = e.Cached(ctx, "flaky")
	var te *TopicError
	assert.ErrorAs(t, err, &te)
}

func TestSyncFailureCrossesAsRegisteredKind(t *testing.T) {
	registry := NewErrorRegistry()
	registry.Register("DriverError",
		func(reason string) error { return &driverFailure{reason: reason} },
		func(err error) bool {
			var df *driverFailure
			return errors.As(err, &df)
		})

	r, e := NewPairWithRegistry("driver", discardLogger(), registry)
	r.Accept("connect", func(args ...any) (any, error) {
		return nil, &driverFailure{reason: "refused"}
	})

	w := concurrency.NewWorker("driver.worker", discardLogger(), r.Serve)
	w.Start()
	t.Cleanup(func() {
		_ = e.StopServing()
		require.NoError(t, w.Join())
	})

	_, err := e.Call(testContext(t), "connect")
	var df *driverFailure
	require.ErrorAs(t, err, &df, "the same kind must be rebuilt on the emitting side")
	assert.Equal(t, "refused", df.reason)
}

type driverFailure struct {
	reason string
}

func (e *driverFailure) Error() string { return e.reason }

func TestSyncFailureFromPanickingHandler(t *testing.T) {
	e := servePair(t, "driver", func(r *Receiver) {
		r.Accept("explode", func(args ...any) (any, error) {
			panic("kaboom")
		})
		r.Accept("ping", func(args ...any) (any, error) { return "pong", nil })
	})
	ctx := testContext(t)

	_, err := e.Call(ctx, "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// Serving survived the panic.
	v, err := e.Call(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", v)
}

func TestRegistryRebuildUnknownKind(t *testing.T) {
	registry := NewErrorRegistry()
	err := registry.rebuild("AlienError", "boom")

	var cre *CannotReraiseError
	require.ErrorAs(t, err, &cre)
	assert.Equal(t, "AlienError", cre.Kind)
	assert.Equal(t, "boom", cre.Reason)
}

func TestStopServingLeavesLaterMessagesUnprocessed(t *testing.T) {
	r, e := NewPair("driver", discardLogger())

	var calls atomic.Int32
	r.Accept("work", func(args ...any) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	require.NoError(t, e.Emit("work"))
	require.NoError(t, e.StopServing())
	require.NoError(t, e.Emit("work"))

	ctx := testContext(t)
	require.True(t, r.React(ctx), "message ahead of stopServing is processed")
	require.False(t, r.React(ctx), "stopServing halts the loop")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.link.event.Len(), "message behind stopServing stays queued")
}

func TestUnknownAsyncTopicIsDropped(t *testing.T) {
	r, e := NewPair("driver", discardLogger())
	r.Accept("known", func(args ...any) (any, error) { return nil, nil })

	require.NoError(t, e.Emit("unknown"))
	ctx := testContext(t)
	require.True(t, r.React(ctx), "an unknown plain topic must not stop serving")
	assert.Equal(t, 0, r.link.event.Len())
	assert.Equal(t, 0, r.link.fault.Len(), "nobody is waiting, nothing crosses back")
}

func TestSameWorkerSyncCallRejected(t *testing.T) {
	r, e := NewPair("driver", discardLogger())
	r.Accept("connect", func(args ...any) (any, error) { return nil, nil })

	servingCtx := concurrency.WithWorker(context.Background(), "driver.worker")
	require.True(t, r.React(servingCtx), "idle react records the serving worker")

	_, err := e.Call(servingCtx, "connect")
	require.ErrorIs(t, err, ErrSameWorkerSync)

	_, err = e.Cached(servingCtx, "connect")
	require.ErrorIs(t, err, ErrSameWorkerSync)

	// A different worker identity passes the guard.
	otherCtx, cancel := context.WithTimeout(concurrency.WithWorker(context.Background(), "other.worker"), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := e.Call(otherCtx, "connect")
		done <- err
	}()
	for {
		if !r.React(servingCtx) {
			t.Fatal("receiver stopped unexpectedly")
		}
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		default:
		}
	}
}

func TestHelpListsRegistrations(t *testing.T) {
	e := servePair(t, "driver", func(r *Receiver) {
		r.AcceptDoc("connect", "Connect opens the wire connection.", func(args ...any) (any, error) { return nil, nil })
		r.Accept("logout", func(args ...any) (any, error) { return nil, nil })
	})

	help, err := e.Help(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "Connect opens the wire connection.", help["connect"])
	_, hasLogout := help["logout"]
	assert.True(t, hasLogout)
}

func TestEmitNonTransportableArgsFailsFast(t *testing.T) {
	_, e := NewPair("driver", discardLogger())
	err := e.Emit("connect", make(chan int))
	assert.ErrorIs(t, err, concurrency.ErrNotTransportable)
}

// TestDriverWorkerScenario drives a full link the way an engine drives a
// driver worker: asynchronous pipelining, a cached read fenced behind it and
// a final synchronous call.
func TestDriverWorkerScenario(t *testing.T) {
	var connects atomic.Int32
	e := servePair(t, "account.0.driver.0", func(r *Receiver) {
		r.Accept("connect", func(args ...any) (any, error) {
			connects.Add(1)
			return fmt.Sprintf("connected to %v:%v", args[0], args[1]), nil
		})
	})
	ctx := testContext(t)

	require.NoError(t, e.Emit("connect", "imap.example.org", 993))

	cached, err := e.Cached(ctx, "connect")
	require.NoError(t, err)
	assert.Equal(t, "connected to imap.example.org:993", cached)
	assert.Equal(t, int32(1), connects.Load())

	direct, err := e.Call(ctx, "connect", "imap.example.org", 143)
	require.NoError(t, err)
	assert.Equal(t, "connected to imap.example.org:143", direct)
	assert.Equal(t, int32(2), connects.Load())

	// The synchronous invocation did not touch the cache.
	cached, err = e.Cached(ctx, "connect")
	require.NoError(t, err)
	assert.Equal(t, "connected to imap.example.org:993", cached)
}
