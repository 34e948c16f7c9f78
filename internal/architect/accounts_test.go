package architect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/exitcode"
)

func TestSyncAccountsArchitect_LimitsConcurrentWorkers(t *testing.T) {
	accounts := []string{"one", "two", "three"}
	f := newFixture(t, accounts...)
	for _, account := range accounts {
		seedMaildir(t, f.left(account), "INBOX", account+"-msg@x")
	}

	arch := NewSyncAccountsArchitect(f.cfg, f.store, discardLogger())
	require.NoError(t, arch.Start(accounts, 2))
	t.Cleanup(arch.Kill)

	// Three accounts under a concurrency limit of two: exactly two
	// workers, draining the queue between them.
	require.Len(t, arch.children, 2)

	code := arch.Run(testContext(t))
	assert.Equal(t, exitcode.OK, code)
	for _, account := range accounts {
		assert.Equal(t, 1, countMessages(t, f.right(account), "INBOX"), account)
	}
}

func TestSyncAccountsArchitect_AggregatesWorstCode(t *testing.T) {
	f := newFixture(t, "personal")
	seedMaildir(t, f.left("personal"), "INBOX", "a@x")

	// An IMAP side nothing listens on: the broken account degrades to a
	// failure without stopping the healthy one.
	tlsOff := false
	f.cfg.Repositories["dead"] = config.Repository{
		Type: config.TypeIMAP,
		IMAP: &config.IMAPConf{Host: "127.0.0.1", Port: 1, TLS: &tlsOff, Username: "u", Password: "p"},
	}
	f.cfg.Accounts["broken"] = config.Account{Left: "dead", Right: "personal-far"}
	require.NoError(t, f.cfg.Validate())

	arch := NewSyncAccountsArchitect(f.cfg, f.store, discardLogger())
	require.NoError(t, arch.Start([]string{"broken", "personal"}, 2))
	t.Cleanup(arch.Kill)

	code := arch.Run(testContext(t))
	assert.Equal(t, exitcode.Failure, code)
	assert.Equal(t, 1, countMessages(t, f.right("personal"), "INBOX"))
}

func TestSyncAccountsArchitect_StartValidates(t *testing.T) {
	f := newFixture(t, "personal")
	arch := NewSyncAccountsArchitect(f.cfg, f.store, discardLogger())

	err := arch.Start(nil, 2)
	require.ErrorContains(t, err, "no accounts")

	err = arch.Start([]string{"personal"}, 0)
	require.ErrorContains(t, err, "at least one account worker")
}

func TestSyncAccountsArchitect_RunBeforeStartNeverResolves(t *testing.T) {
	f := newFixture(t, "personal")
	arch := NewSyncAccountsArchitect(f.cfg, f.store, discardLogger())

	assert.Equal(t, exitcode.NeverResolved, arch.Run(testContext(t)))
}

func TestSyncAccountsArchitect_CancellationKillsWorkers(t *testing.T) {
	f := newFixture(t, "personal")
	seedMaildir(t, f.left("personal"), "INBOX", "a@x")

	arch := NewSyncAccountsArchitect(f.cfg, f.store, discardLogger())
	require.NoError(t, arch.Start([]string{"personal"}, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, exitcode.Failure, arch.Run(ctx))
	assert.Empty(t, arch.children)
}
