package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imapfw.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `settings:
  max_sync_accounts: 2
accounts:
  personal:
    left: remote
    right: local
    folders:
      exclude: ["Spam"]
repositories:
  remote:
    type: imap
    max_connections: 2
    imap:
      host: imap.example.org
      username: me@example.org
      password: hunter2
  local:
    type: maildir
    maildir:
      root: /var/mail/me
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Settings.MaxSyncAccounts)
	assert.Equal(t, "imapfw.state.db", cfg.Settings.StatePath, "default applied")
	assert.Equal(t, "info", cfg.Settings.Logging.Level)
	assert.Equal(t, "text", cfg.Settings.Logging.Format)

	account, err := cfg.Account("personal")
	require.NoError(t, err)
	assert.Equal(t, "remote", account.Left)

	remote, err := cfg.Repository("remote")
	require.NoError(t, err)
	assert.Equal(t, TypeIMAP, remote.Type)
	assert.Equal(t, 993, remote.IMAP.Port, "TLS default port applied")
	assert.True(t, remote.IMAP.UseTLS())

	local, err := cfg.Repository("local")
	require.NoError(t, err)
	assert.Equal(t, 1, local.MaxConnections, "default applied")
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/imapfw.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "accounts: [not: valid"))
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "no accounts",
			mutate:  func(c *Config) { c.Accounts = nil },
			wantErr: "no accounts defined",
		},
		{
			name:    "no repositories",
			mutate:  func(c *Config) { c.Repositories = nil },
			wantErr: "no repositories defined",
		},
		{
			name: "dangling repository reference",
			mutate: func(c *Config) {
				a := c.Accounts["personal"]
				a.Right = "missing"
				c.Accounts["personal"] = a
			},
			wantErr: `references unknown repository "missing"`,
		},
		{
			name: "unknown repository type",
			mutate: func(c *Config) {
				r := c.Repositories["local"]
				r.Type = "pop3"
				c.Repositories["local"] = r
			},
			wantErr: "invalid type",
		},
		{
			name: "imap without host",
			mutate: func(c *Config) {
				c.Repositories["remote"].IMAP.Host = ""
			},
			wantErr: "imap.host is required",
		},
		{
			name: "tls and starttls together",
			mutate: func(c *Config) {
				yes := true
				c.Repositories["remote"].IMAP.TLS = &yes
				c.Repositories["remote"].IMAP.StartTLS = true
			},
			wantErr: "exclusive",
		},
		{
			name: "bad logging level",
			mutate: func(c *Config) {
				c.Settings.Logging.Level = "loud"
			},
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfig))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIMAPConf_ResolvePassword(t *testing.T) {
	conf := &IMAPConf{Password: "from-file", PasswordEnv: "IMAPFW_TEST_PASSWORD"}

	t.Run("falls back to the file value", func(t *testing.T) {
		assert.Equal(t, "from-file", conf.ResolvePassword())
	})

	t.Run("environment wins when set", func(t *testing.T) {
		t.Setenv("IMAPFW_TEST_PASSWORD", "from-env")
		assert.Equal(t, "from-env", conf.ResolvePassword())
	})
}

func TestIMAPConf_PlainPortDefault(t *testing.T) {
	no := false
	conf := &IMAPConf{Host: "h", Username: "u", TLS: &no}
	require.NoError(t, conf.validate("r"))
	assert.Equal(t, 143, conf.Port)
}

func TestFolderFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter *FolderFilter
		folder string
		keep   bool
	}{
		{"nil filter keeps everything", nil, "INBOX", true},
		{"empty include keeps everything", &FolderFilter{}, "INBOX", true},
		{"exclude drops match", &FolderFilter{Exclude: []string{"Spam"}}, "Spam", false},
		{"exclude glob", &FolderFilter{Exclude: []string{"[[]Gmail]*"}}, "[Gmail]Trash", false},
		{"include narrows", &FolderFilter{Include: []string{"INBOX*"}}, "Archive", false},
		{"include match", &FolderFilter{Include: []string{"INBOX*"}}, "INBOX", true},
		{"exclude beats include", &FolderFilter{Include: []string{"*"}, Exclude: []string{"Drafts"}}, "Drafts", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keep, tt.filter.Keep(tt.folder))
		})
	}
}

func TestFolderFilter_Apply(t *testing.T) {
	filter := &FolderFilter{Exclude: []string{"Spam", "Trash"}}
	got := filter.Apply([]string{"INBOX", "Spam", "Archive", "Trash"})
	assert.Equal(t, []string{"INBOX", "Archive"}, got)
}
