package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/pkg/concurrency"
	"github.com/c4ffein/imapfw/pkg/edmp"
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

// startPair serves a receiver on its own worker, running setup on the
// serving goroutine first, the way a runner does.
func startPair(t *testing.T, name string, setup func(ctx context.Context, r *edmp.Receiver)) *edmp.Emitter {
	t.Helper()

	receiver, emitter := edmp.NewPair(name, discardLogger())
	worker := concurrency.NewWorker(name+".worker", discardLogger(), func(ctx context.Context) {
		setup(ctx, receiver)
		receiver.Serve(ctx)
	})
	worker.Start()
	t.Cleanup(func() {
		_ = emitter.StopServing()
		_ = worker.Join()
	})
	return emitter
}

// gadget exercises every binding shape: plain arguments, context
// injection, conversions, tuple results, errors and framework hooks.
type gadget struct {
	sawCtx bool
}

func (g *gadget) Ping(msg string) string { return "pong: " + msg }
func (g *gadget) Add(a, b int) int       { return a + b }
func (g *gadget) Take(u uint32) uint32   { return u * 2 }
func (g *gadget) Pair() (int, string)    { return 7, "seven" }
func (g *gadget) Fail() error            { return errors.New("gadget broke") }
func (g *gadget) FwSecret() string       { return "hidden" }

func (g *gadget) Watch(ctx context.Context) (bool, error) {
	g.sawCtx = ctx != nil
	return g.sawCtx, nil
}

func TestBindTopics_NamesAndFrameworkHooks(t *testing.T) {
	g := &gadget{}
	var topics []string
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		topics = BindTopics(ctx, r, g)
	})

	help, err := emitter.Help(testContext(t))
	require.NoError(t, err)

	for _, topic := range []string{"ping", "add", "take", "pair", "fail", "watch"} {
		assert.Contains(t, help, topic)
	}
	assert.NotContains(t, help, "fwSecret")
	assert.NotContains(t, help, "FwSecret")
	assert.ElementsMatch(t, topics, []string{"add", "fail", "pair", "ping", "take", "watch"})
}

func TestBindTopics_CallRoundTrip(t *testing.T) {
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, &gadget{})
	})
	ctx := testContext(t)

	got, err := emitter.Call(ctx, "ping", "hello")
	require.NoError(t, err)
	assert.Equal(t, "pong: hello", got)

	sum, err := emitter.Call(ctx, "add", 19, 23)
	require.NoError(t, err)
	assert.Equal(t, 42, sum)
}

func TestBindTopics_ConvertsNumericArguments(t *testing.T) {
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, &gadget{})
	})

	// An int argument lands on a uint32 parameter.
	got, err := emitter.Call(testContext(t), "take", 21)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)
}

func TestBindTopics_RejectsMismatchedArguments(t *testing.T) {
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, &gadget{})
	})
	ctx := testContext(t)

	_, err := emitter.Call(ctx, "ping", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot use int")

	_, err = emitter.Call(ctx, "add", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing argument")

	_, err = emitter.Call(ctx, "ping", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 1")
}

func TestBindTopics_InjectsContext(t *testing.T) {
	g := &gadget{}
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, g)
	})

	got, err := emitter.Call(testContext(t), "watch")
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestBindTopics_TupleResult(t *testing.T) {
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, &gadget{})
	})

	got, err := emitter.Call(testContext(t), "pair")
	require.NoError(t, err)
	assert.Equal(t, edmp.Tuple{7, "seven"}, got)
}

func TestBindTopics_ErrorCrossesOnSyncCall(t *testing.T) {
	emitter := startPair(t, "gadget", func(ctx context.Context, r *edmp.Receiver) {
		BindTopics(ctx, r, &gadget{})
	})

	_, err := emitter.Call(testContext(t), "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gadget broke")
}
