package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4ffein/imapfw/internal/exitcode"
)

func TestExamineCommand_ListsMaildirFolders(t *testing.T) {
	cfgPath, left, right := maildirConfig(t)
	seedMaildir(t, left, "INBOX", "a@example")
	seedMaildir(t, left, "Archive/2026", "b@example")
	seedMaildir(t, right, "INBOX")

	code := runCLI("--config", cfgPath, "examine")

	assert.Equal(t, exitcode.OK, code)
}

func TestExamineCommand_ReportsUnreachableRepository(t *testing.T) {
	dir := t.TempDir()
	body := fmt.Sprintf(`settings:
  state_path: %s
  logging:
    level: error
accounts:
  personal:
    left: dead
    right: far
repositories:
  dead:
    type: imap
    imap:
      host: 127.0.0.1
      port: 1
      tls: false
      username: u
      password: p
  far:
    type: maildir
    maildir:
      root: %s
`, filepath.Join(dir, "sync.db"), filepath.Join(dir, "far"))
	path := filepath.Join(dir, "imapfw.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	// The maildir side examines fine; the dead IMAP side fails the run.
	code := runCLI("--config", path, "examine")

	assert.Equal(t, exitcode.ActionError, code)
}
