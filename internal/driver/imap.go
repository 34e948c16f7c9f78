package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/c4ffein/imapfw/internal/config"
)

// IMAPDriver talks to one IMAP mailbox over a single connection.
type IMAPDriver struct {
	repository string
	conf       config.IMAPConf
	logger     *slog.Logger

	client   *imapclient.Client
	selected string
}

// NewIMAPDriver builds a driver for the named repository. No connection
// is made until Connect.
func NewIMAPDriver(repository string, conf config.IMAPConf, logger *slog.Logger) *IMAPDriver {
	return &IMAPDriver{
		repository: repository,
		conf:       conf,
		logger:     logger.With("driver", "imap", "repository", repository),
	}
}

// FwInit fails fast on credentials the server would reject anyway, so
// an unset password_env surfaces at build time instead of as a cryptic
// authentication error.
func (d *IMAPDriver) FwInit() error {
	if d.conf.ResolvePassword() == "" {
		if d.conf.PasswordEnv != "" {
			return fmt.Errorf("imap %s: password_env %s is not set", d.repository, d.conf.PasswordEnv)
		}
		return fmt.Errorf("imap %s: no password configured", d.repository)
	}
	return nil
}

func (d *IMAPDriver) FwKind() string           { return "IMAP" }
func (d *IMAPDriver) FwRepositoryName() string { return d.repository }

func (d *IMAPDriver) addr() string {
	return fmt.Sprintf("%s:%d", d.conf.Host, d.conf.Port)
}

// Connect dials the server, with implicit TLS or STARTTLS depending on
// the repository configuration.
func (d *IMAPDriver) Connect(_ context.Context) error {
	if d.client != nil {
		return nil
	}

	var client *imapclient.Client
	var err error
	if d.conf.UseTLS() {
		client, err = imapclient.DialTLS(d.addr(), nil)
	} else {
		client, err = imapclient.DialStartTLS(d.addr(), nil)
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", d.addr(), err)
	}

	d.client = client
	d.logger.Debug("connected", "addr", d.addr())
	return nil
}

// Login authenticates with the configured credentials.
func (d *IMAPDriver) Login(_ context.Context) error {
	if d.client == nil {
		return fmt.Errorf("imap %s: not connected", d.repository)
	}
	if err := d.client.Login(d.conf.Username, d.conf.ResolvePassword()).Wait(); err != nil {
		return fmt.Errorf("authenticating %s on %s: %w", d.conf.Username, d.addr(), err)
	}
	d.logger.Debug("logged in", "username", d.conf.Username)
	return nil
}

// Capability asks the server for its capabilities and returns them
// sorted.
func (d *IMAPDriver) Capability(_ context.Context) ([]string, error) {
	if d.client == nil {
		return nil, fmt.Errorf("imap %s: not connected", d.repository)
	}

	caps, err := d.client.Capability().Wait()
	if err != nil {
		return nil, fmt.Errorf("fetching capabilities from %s: %w", d.addr(), err)
	}

	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names, nil
}

// Folders lists the selectable mailboxes.
func (d *IMAPDriver) Folders(_ context.Context) ([]string, error) {
	if d.client == nil {
		return nil, fmt.Errorf("imap %s: not connected", d.repository)
	}

	boxes, err := d.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders on %s: %w", d.addr(), err)
	}

	var folders []string
	for _, box := range boxes {
		if hasAttr(box.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		folders = append(folders, box.Mailbox)
	}
	sort.Strings(folders)
	return folders, nil
}

// Select makes folder the current mailbox.
func (d *IMAPDriver) Select(_ context.Context, folder string) (int, error) {
	if d.client == nil {
		return 0, fmt.Errorf("imap %s: not connected", d.repository)
	}

	data, err := d.client.Select(folder, nil).Wait()
	if err != nil {
		// The folder set is the union of both sides, so this server may
		// not have the folder yet. Create it and retry once.
		if cerr := d.client.Create(folder, nil).Wait(); cerr != nil {
			return 0, fmt.Errorf("selecting %q on %s: %w", folder, d.addr(), err)
		}
		if data, err = d.client.Select(folder, nil).Wait(); err != nil {
			return 0, fmt.Errorf("selecting %q on %s: %w", folder, d.addr(), err)
		}
	}
	d.selected = folder
	return int(data.NumMessages), nil
}

// SearchUIDs returns every UID in the current mailbox, ascending.
func (d *IMAPDriver) SearchUIDs(_ context.Context) ([]uint32, error) {
	if d.client == nil {
		return nil, fmt.Errorf("imap %s: not connected", d.repository)
	}
	if d.selected == "" {
		return nil, fmt.Errorf("imap %s: no folder selected", d.repository)
	}

	data, err := d.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %q on %s: %w", d.selected, d.addr(), err)
	}

	raw := data.AllUIDs()
	uids := make([]uint32, len(raw))
	for i, uid := range raw {
		uids[i] = uint32(uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// Fetch retrieves the full message with the given UID from the current
// mailbox.
func (d *IMAPDriver) Fetch(_ context.Context, uid uint32) (Message, error) {
	if d.client == nil {
		return Message{}, fmt.Errorf("imap %s: not connected", d.repository)
	}

	section := &imap.FetchItemBodySection{Peek: true}
	cmd := d.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	})
	defer cmd.Close()

	msg := cmd.Next()
	if msg == nil {
		return Message{}, fmt.Errorf("uid %d not found in %q on %s", uid, d.selected, d.addr())
	}
	buf, err := msg.Collect()
	if err != nil {
		return Message{}, fmt.Errorf("fetching uid %d from %s: %w", uid, d.addr(), err)
	}
	if err := cmd.Close(); err != nil {
		return Message{}, fmt.Errorf("fetching uid %d from %s: %w", uid, d.addr(), err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return Message{}, fmt.Errorf("uid %d on %s came back without a body", uid, d.addr())
	}

	id, date := parseMeta(raw)
	if !buf.InternalDate.IsZero() {
		date = buf.InternalDate
	}
	return Message{ID: id, UID: uid, Raw: raw, Date: date}, nil
}

// Append stores msg into the current mailbox and returns its UID there.
// Servers without UIDPLUS do not report the new UID; in that case the
// mailbox is searched by message id.
func (d *IMAPDriver) Append(ctx context.Context, msg Message) (uint32, error) {
	if d.client == nil {
		return 0, fmt.Errorf("imap %s: not connected", d.repository)
	}
	if d.selected == "" {
		return 0, fmt.Errorf("imap %s: no folder selected", d.repository)
	}

	cmd := d.client.Append(d.selected, int64(len(msg.Raw)), &imap.AppendOptions{Time: msg.Date})
	if _, err := cmd.Write(msg.Raw); err != nil {
		return 0, fmt.Errorf("appending to %q on %s: %w", d.selected, d.addr(), err)
	}
	if err := cmd.Close(); err != nil {
		return 0, fmt.Errorf("appending to %q on %s: %w", d.selected, d.addr(), err)
	}
	data, err := cmd.Wait()
	if err != nil {
		return 0, fmt.Errorf("appending to %q on %s: %w", d.selected, d.addr(), err)
	}
	if data.UID != 0 {
		return uint32(data.UID), nil
	}
	return d.findByMessageID(ctx, msg.ID)
}

// findByMessageID locates a just-appended message on servers that do
// not implement UIDPLUS.
func (d *IMAPDriver) findByMessageID(_ context.Context, id string) (uint32, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Message-Id", Value: "<" + id + ">"}},
	}
	data, err := d.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("locating appended message %s: %w", id, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, fmt.Errorf("appended message %s not found in %q", id, d.selected)
	}
	return uint32(uids[len(uids)-1]), nil
}

// Logout closes the connection. It is safe to call repeatedly.
func (d *IMAPDriver) Logout(_ context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Logout().Wait()
	d.client = nil
	d.selected = ""
	if err != nil {
		return fmt.Errorf("logging out from %s: %w", d.addr(), err)
	}
	return nil
}

func hasAttr(attrs []imap.MailboxAttr, attr imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == attr {
			return true
		}
	}
	return false
}
