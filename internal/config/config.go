// Package config loads and validates the imapfw.yml configuration: global
// settings, the accounts to synchronize and the repositories they pair up.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the configuration by default.
const DefaultPath = "imapfw.yml"

// Repository types.
const (
	TypeIMAP    = "imap"
	TypeMaildir = "maildir"
)

// Config is the top-level imapfw.yml configuration.
type Config struct {
	Settings     Settings              `yaml:"settings"`
	Accounts     map[string]Account    `yaml:"accounts"`
	Repositories map[string]Repository `yaml:"repositories"`
}

// Settings holds the global knobs.
type Settings struct {
	MaxSyncAccounts int     `yaml:"max_sync_accounts,omitempty"` // ceiling on accounts synced concurrently (default 1)
	StatePath       string  `yaml:"state_path,omitempty"`        // sqlite sync-state location (default imapfw.state.db)
	Logging         Logging `yaml:"logging,omitempty"`
}

// Logging selects the log verbosity and encoding.
type Logging struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn or error (default info)
	Format string `yaml:"format,omitempty"` // text or json (default text)
}

// Account pairs two repositories for synchronization.
type Account struct {
	Left    string        `yaml:"left"`  // repository name of the left side
	Right   string        `yaml:"right"` // repository name of the right side
	Folders *FolderFilter `yaml:"folders,omitempty"`
}

// FolderFilter narrows which folders of an account are synchronized.
type FolderFilter struct {
	Include []string `yaml:"include,omitempty"` // glob patterns; empty keeps every folder
	Exclude []string `yaml:"exclude,omitempty"` // glob patterns dropped after include
}

// Repository describes one end-point mail store.
type Repository struct {
	Type           string       `yaml:"type"`                      // imap or maildir
	MaxConnections int          `yaml:"max_connections,omitempty"` // concurrent driver workers allowed (default 1)
	IMAP           *IMAPConf    `yaml:"imap,omitempty"`
	Maildir        *MaildirConf `yaml:"maildir,omitempty"`
}

// IMAPConf configures an IMAP end-point.
type IMAPConf struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port,omitempty"` // default 993 with TLS, 143 otherwise
	TLS         *bool  `yaml:"tls,omitempty"`  // implicit TLS (default true)
	StartTLS    bool   `yaml:"starttls,omitempty"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"` // read the password from this variable instead
}

// MaildirConf configures a local Maildir tree.
type MaildirConf struct {
	Root string `yaml:"root"` // directory holding one Maildir per folder
}

// Load reads, parses and validates the configuration at path. Defaults are
// applied and ~ in filesystem paths is expanded, so the returned Config is
// ready to use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.Settings.StatePath = expandHome(cfg.Settings.StatePath)
	for name, repo := range cfg.Repositories {
		if repo.Maildir != nil {
			repo.Maildir.Root = expandHome(repo.Maildir.Root)
			cfg.Repositories[name] = repo
		}
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Settings.MaxSyncAccounts == 0 {
		c.Settings.MaxSyncAccounts = 1
	}
	if c.Settings.MaxSyncAccounts < 1 {
		return fmt.Errorf("settings.max_sync_accounts must be >= 1, got %d", c.Settings.MaxSyncAccounts)
	}
	if c.Settings.StatePath == "" {
		c.Settings.StatePath = "imapfw.state.db"
	}
	if err := c.Settings.Logging.validate(); err != nil {
		return err
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts defined")
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("no repositories defined")
	}

	for name, repo := range c.Repositories {
		if err := repo.Validate(name); err != nil {
			return err
		}
		c.Repositories[name] = repo // keep applied defaults
	}

	for name, account := range c.Accounts {
		if err := account.Validate(name, c.Repositories); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logging) validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: invalid level %q (must be 'debug', 'info', 'warn' or 'error')", l.Level)
	}

	if l.Format == "" {
		l.Format = "text"
	}
	if l.Format != "text" && l.Format != "json" {
		return fmt.Errorf("logging.format: invalid format %q (must be 'text' or 'json')", l.Format)
	}
	return nil
}

// Validate checks a single account against the known repositories.
func (a Account) Validate(name string, repositories map[string]Repository) error {
	if a.Left == "" {
		return fmt.Errorf("account %q: left is required", name)
	}
	if a.Right == "" {
		return fmt.Errorf("account %q: right is required", name)
	}
	if _, ok := repositories[a.Left]; !ok {
		return fmt.Errorf("account %q: left references unknown repository %q", name, a.Left)
	}
	if _, ok := repositories[a.Right]; !ok {
		return fmt.Errorf("account %q: right references unknown repository %q", name, a.Right)
	}
	return nil
}

// Validate checks a single repository and fills in its defaults.
func (r *Repository) Validate(name string) error {
	if r.MaxConnections == 0 {
		r.MaxConnections = 1
	}
	if r.MaxConnections < 1 {
		return fmt.Errorf("repository %q: max_connections must be >= 1, got %d", name, r.MaxConnections)
	}

	switch r.Type {
	case TypeIMAP:
		if r.IMAP == nil {
			return fmt.Errorf("repository %q: imap section is required for type imap", name)
		}
		return r.IMAP.validate(name)
	case TypeMaildir:
		if r.Maildir == nil {
			return fmt.Errorf("repository %q: maildir section is required for type maildir", name)
		}
		if r.Maildir.Root == "" {
			return fmt.Errorf("repository %q: maildir.root is required", name)
		}
		return nil
	default:
		return fmt.Errorf("repository %q: invalid type %q (must be 'imap' or 'maildir')", name, r.Type)
	}
}

func (c *IMAPConf) validate(name string) error {
	if c.Host == "" {
		return fmt.Errorf("repository %q: imap.host is required", name)
	}
	if c.Username == "" {
		return fmt.Errorf("repository %q: imap.username is required", name)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("repository %q: imap.port out of range: %d", name, c.Port)
	}
	if c.StartTLS && c.TLS != nil && *c.TLS {
		return fmt.Errorf("repository %q: tls and starttls are exclusive, pick one", name)
	}
	if c.Port == 0 {
		if c.UseTLS() {
			c.Port = 993
		} else {
			c.Port = 143
		}
	}
	return nil
}

// UseTLS reports whether the connection uses implicit TLS. Unset means yes,
// unless starttls asks for a plain connection upgraded in-band.
func (c *IMAPConf) UseTLS() bool {
	if c.TLS != nil {
		return *c.TLS
	}
	return !c.StartTLS
}

// ResolvePassword returns the account password, preferring the environment
// variable named by password_env when it is set and non-empty.
func (c *IMAPConf) ResolvePassword() string {
	if c.PasswordEnv != "" {
		if v := os.Getenv(c.PasswordEnv); v != "" {
			return v
		}
	}
	return c.Password
}

// Account returns the named account.
func (c *Config) Account(name string) (Account, error) {
	account, ok := c.Accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("unknown account %q", name)
	}
	return account, nil
}

// Repository returns the named repository.
func (c *Config) Repository(name string) (Repository, error) {
	repo, ok := c.Repositories[name]
	if !ok {
		return Repository{}, fmt.Errorf("unknown repository %q", name)
	}
	return repo, nil
}

// AccountNames returns every configured account name, sorted for a stable
// processing order.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
