package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/driver"
	"github.com/c4ffein/imapfw/internal/syncstate"
	"github.com/c4ffein/imapfw/pkg/concurrency"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// harness is a two-maildir account with both driver workers serving.
type harness struct {
	cfg       *config.Config
	store     *syncstate.Store
	left      *DriverClient
	right     *DriverClient
	leftRoot  string
	rightRoot string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{leftRoot: t.TempDir(), rightRoot: t.TempDir()}
	h.cfg = &config.Config{
		Accounts: map[string]config.Account{
			"personal": {Left: "near", Right: "far"},
		},
		Repositories: map[string]config.Repository{
			"near": {Type: config.TypeMaildir, Maildir: &config.MaildirConf{Root: h.leftRoot}},
			"far":  {Type: config.TypeMaildir, Maildir: &config.MaildirConf{Root: h.rightRoot}},
		},
	}
	require.NoError(t, h.cfg.Validate())

	store, err := syncstate.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	h.store = store

	h.left = NewDriverClient(h.startDriverWorker(t, "driver.left"))
	h.right = NewDriverClient(h.startDriverWorker(t, "driver.right"))
	return h
}

func (h *harness) startDriverWorker(t *testing.T, name string) *edmp.Emitter {
	t.Helper()

	receiver, emitter := edmp.NewPair(name, discardLogger())
	runner := driver.NewRunner(receiver, h.cfg, h.store, discardLogger())
	worker := concurrency.NewWorker(name+".worker", discardLogger(), runner.Run)
	worker.Start()
	t.Cleanup(func() {
		_ = emitter.StopServing()
		_ = worker.Join()
	})
	return emitter
}

// runWorker runs fn as a worker and waits for it to finish.
func runWorker(t *testing.T, name string, fn concurrency.Runner) {
	t.Helper()
	worker := concurrency.NewWorker(name, discardLogger(), fn)
	worker.Start()
	require.NoError(t, worker.Join())
}

func queueOf(t *testing.T, items ...any) *edmp.Channel {
	t.Helper()
	q := concurrency.NewQueue()
	for _, item := range items {
		require.NoError(t, q.Put(item))
	}
	return edmp.NewChannel(q)
}
