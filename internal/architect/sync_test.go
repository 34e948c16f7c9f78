package architect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/internal/exitcode"
	"github.com/c4ffein/imapfw/pkg/concurrency"
)

func startAccountQueue(t *testing.T, accounts ...string) *concurrency.Queue {
	t.Helper()
	queue := concurrency.NewQueue()
	for _, account := range accounts {
		require.NoError(t, queue.Put(account))
	}
	return queue
}

func startSyncArchitect(t *testing.T, f *fixture, accounts ...string) *SyncArchitect {
	t.Helper()
	child := NewSyncArchitect("Account.0", f.cfg, f.store, discardLogger())
	child.Start(startAccountQueue(t, accounts...))
	t.Cleanup(child.Kill)
	return child
}

func TestSyncArchitect_SyncsOneAccount(t *testing.T) {
	f := newFixture(t, "personal")
	ctx := testContext(t)
	seedMaildir(t, f.left("personal"), "INBOX", "a@x", "b@x")
	seedMaildir(t, f.right("personal"), "Sent", "c@x")

	child := startSyncArchitect(t, f, "personal")
	code := awaitResolved(t, ctx, child.ExitCode)

	assert.Equal(t, exitcode.OK, code)
	assert.Equal(t, 2, countMessages(t, f.right("personal"), "INBOX"))
	assert.Equal(t, 1, countMessages(t, f.left("personal"), "Sent"))

	// Resolution is final.
	assert.Equal(t, code, child.ExitCode(ctx))
}

func TestSyncArchitect_DrainsSeveralAccounts(t *testing.T) {
	f := newFixture(t, "personal", "work")
	seedMaildir(t, f.left("personal"), "INBOX", "a@x")
	seedMaildir(t, f.right("work"), "INBOX", "b@x")

	child := startSyncArchitect(t, f, "personal", "work")
	code := awaitResolved(t, testContext(t), child.ExitCode)

	assert.Equal(t, exitcode.OK, code)
	assert.Equal(t, 1, countMessages(t, f.right("personal"), "INBOX"))
	assert.Equal(t, 1, countMessages(t, f.left("work"), "INBOX"))
	// One fan-out per account, over the same rebuilt driver links.
	assert.Equal(t, 2, child.fanouts)
}

func TestSyncArchitect_FansOutOverExtraWorkers(t *testing.T) {
	f := newFixture(t, "personal")
	for _, name := range []string{"personal-near", "personal-far"} {
		repo := f.cfg.Repositories[name]
		repo.MaxConnections = 2
		f.cfg.Repositories[name] = repo
	}
	seedMaildir(t, f.left("personal"), "INBOX", "a@x", "b@x")
	seedMaildir(t, f.left("personal"), "Sent", "c@x")
	seedMaildir(t, f.right("personal"), "Archive", "d@x")

	child := startSyncArchitect(t, f, "personal")
	code := awaitResolved(t, testContext(t), child.ExitCode)

	assert.Equal(t, exitcode.OK, code)
	for folder, want := range map[string]int{"INBOX": 2, "Sent": 1, "Archive": 1} {
		assert.Equal(t, want, countMessages(t, f.left("personal"), folder), "left %s", folder)
		assert.Equal(t, want, countMessages(t, f.right("personal"), folder), "right %s", folder)
	}
}

func TestSyncArchitect_UnknownAccountResolvesFailure(t *testing.T) {
	f := newFixture(t, "personal")

	child := startSyncArchitect(t, f, "ghost")
	code := awaitResolved(t, testContext(t), child.ExitCode)

	assert.Equal(t, exitcode.Failure, code)
	assert.Equal(t, 0, child.fanouts)
}

func TestSyncArchitect_KillResolvesFailure(t *testing.T) {
	f := newFixture(t, "personal")

	child := startSyncArchitect(t, f, "personal")
	child.Kill()

	assert.Equal(t, exitcode.Failure, child.ExitCode(testContext(t)))
}
