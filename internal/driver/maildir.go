package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c4ffein/imapfw/internal/config"
	"github.com/c4ffein/imapfw/internal/syncstate"
)

// maildirSubdirs is the trio every Maildir folder carries.
var maildirSubdirs = []string{"cur", "new", "tmp"}

// MaildirDriver reads and writes a local Maildir tree rooted at the
// configured directory. Folders are subdirectories holding the cur,
// new and tmp trio; when the root itself holds the trio it is exposed
// as INBOX. Maildir has no native UID concept, so the driver leases
// stable per-folder UIDs from the sync-state store, keyed by the
// immutable part of each message file name.
type MaildirDriver struct {
	repository string
	conf       config.MaildirConf
	store      *syncstate.Store
	logger     *slog.Logger
	host       string

	selected    string
	selectedDir string
}

// NewMaildirDriver builds a driver over the Maildir tree of the named
// repository.
func NewMaildirDriver(repository string, conf config.MaildirConf, store *syncstate.Store, logger *slog.Logger) *MaildirDriver {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return &MaildirDriver{
		repository: repository,
		conf:       conf,
		store:      store,
		logger:     logger.With("driver", "maildir", "repository", repository),
		host:       host,
	}
}

// FwInit has nothing to prepare: the tree is created lazily on Connect.
func (d *MaildirDriver) FwInit() error { return nil }

func (d *MaildirDriver) FwKind() string           { return "Maildir" }
func (d *MaildirDriver) FwRepositoryName() string { return d.repository }

// Connect makes sure the root directory exists.
func (d *MaildirDriver) Connect(_ context.Context) error {
	if err := os.MkdirAll(d.conf.Root, 0o700); err != nil {
		return fmt.Errorf("creating maildir root %s: %w", d.conf.Root, err)
	}
	return nil
}

// Login is a no-op: the filesystem needs no credentials.
func (d *MaildirDriver) Login(_ context.Context) error { return nil }

// Folders walks the tree and returns every directory holding the
// Maildir trio, named by its slash-separated path relative to the
// root. The root itself is reported as INBOX.
func (d *MaildirDriver) Folders(_ context.Context) ([]string, error) {
	var folders []string

	if isMaildir(d.conf.Root) {
		folders = append(folders, "INBOX")
	}

	err := filepath.WalkDir(d.conf.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() || path == d.conf.Root {
			return nil
		}
		name := entry.Name()
		if name == "cur" || name == "new" || name == "tmp" {
			return filepath.SkipDir
		}
		if isMaildir(path) {
			rel, err := filepath.Rel(d.conf.Root, path)
			if err != nil {
				return err
			}
			folders = append(folders, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking maildir root %s: %w", d.conf.Root, err)
	}

	sort.Strings(folders)
	return folders, nil
}

// Select makes folder current, creating its trio on first use so a
// folder seen on the other side materializes here.
func (d *MaildirDriver) Select(_ context.Context, folder string) (int, error) {
	dir, err := d.folderPath(folder)
	if err != nil {
		return 0, err
	}
	for _, sub := range maildirSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return 0, fmt.Errorf("creating maildir folder %q: %w", folder, err)
		}
	}

	d.selected = folder
	d.selectedDir = dir

	count := 0
	for _, sub := range []string{"cur", "new"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			return 0, fmt.Errorf("reading maildir folder %q: %w", folder, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				count++
			}
		}
	}
	return count, nil
}

// SearchUIDs promotes newly delivered files from new to cur, then
// returns the leased UID of every message in the folder, ascending.
func (d *MaildirDriver) SearchUIDs(ctx context.Context) ([]uint32, error) {
	if d.selectedDir == "" {
		return nil, fmt.Errorf("maildir %s: no folder selected", d.repository)
	}

	if err := d.promoteNew(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(d.selectedDir, "cur"))
	if err != nil {
		return nil, fmt.Errorf("reading maildir folder %q: %w", d.selected, err)
	}

	uids := make([]uint32, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		uid, err := d.store.MaildirUID(ctx, d.repository, d.selected, messageKey(entry.Name()))
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// promoteNew renames everything under new into cur with an empty flag
// list, the way any Maildir reader takes delivery.
func (d *MaildirDriver) promoteNew() error {
	newDir := filepath.Join(d.selectedDir, "new")
	entries, err := os.ReadDir(newDir)
	if err != nil {
		return fmt.Errorf("reading maildir folder %q: %w", d.selected, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		from := filepath.Join(newDir, entry.Name())
		to := filepath.Join(d.selectedDir, "cur", entry.Name()+":2,")
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("promoting %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Fetch reads the message whose lease matches uid from the current
// folder.
func (d *MaildirDriver) Fetch(ctx context.Context, uid uint32) (Message, error) {
	if d.selectedDir == "" {
		return Message{}, fmt.Errorf("maildir %s: no folder selected", d.repository)
	}

	key, err := d.store.MaildirKey(ctx, d.repository, d.selected, uid)
	if err != nil {
		return Message{}, err
	}

	path, err := d.findByKey(key)
	if err != nil {
		return Message{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Message{}, fmt.Errorf("reading %s: %w", path, err)
	}

	id, date := parseMeta(raw)
	if date.IsZero() {
		if info, err := os.Stat(path); err == nil {
			date = info.ModTime()
		}
	}
	return Message{ID: id, UID: uid, Raw: raw, Date: date}, nil
}

// findByKey locates the file for a message key, whatever its current
// flag suffix.
func (d *MaildirDriver) findByKey(key string) (string, error) {
	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(d.selectedDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("reading maildir folder %q: %w", d.selected, err)
		}
		for _, entry := range entries {
			if messageKey(entry.Name()) == key {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("message %s vanished from %q", key, d.selected)
}

// Append delivers msg into the current folder through tmp, as the
// Maildir protocol requires, and returns the UID leased for it.
func (d *MaildirDriver) Append(ctx context.Context, msg Message) (uint32, error) {
	if d.selectedDir == "" {
		return 0, fmt.Errorf("maildir %s: no folder selected", d.repository)
	}

	name := fmt.Sprintf("%d.%s.%s", time.Now().Unix(), uuid.NewString(), d.host)
	tmp := filepath.Join(d.selectedDir, "tmp", name)
	if err := os.WriteFile(tmp, msg.Raw, 0o600); err != nil {
		return 0, fmt.Errorf("delivering to %q: %w", d.selected, err)
	}
	if !msg.Date.IsZero() {
		_ = os.Chtimes(tmp, msg.Date, msg.Date)
	}
	if err := os.Rename(tmp, filepath.Join(d.selectedDir, "new", name)); err != nil {
		return 0, fmt.Errorf("delivering to %q: %w", d.selected, err)
	}

	return d.store.MaildirUID(ctx, d.repository, d.selected, name)
}

// Logout forgets the selection. There is no connection to close.
func (d *MaildirDriver) Logout(_ context.Context) error {
	d.selected = ""
	d.selectedDir = ""
	return nil
}

// folderPath resolves a folder name to its directory, refusing names
// that would escape the root.
func (d *MaildirDriver) folderPath(folder string) (string, error) {
	if folder == "INBOX" {
		return d.conf.Root, nil
	}
	clean := filepath.Clean(filepath.FromSlash(folder))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid maildir folder name %q", folder)
	}
	return filepath.Join(d.conf.Root, clean), nil
}

// messageKey returns the immutable part of a Maildir file name, with
// the flag info suffix stripped.
func messageKey(name string) string {
	key, _, _ := strings.Cut(name, ":")
	return key
}

// isMaildir reports whether dir holds the cur, new and tmp trio.
func isMaildir(dir string) bool {
	for _, sub := range maildirSubdirs {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}
