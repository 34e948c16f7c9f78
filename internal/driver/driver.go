// Package driver gives every repository type one uniform, connection
// oriented access contract. A driver instance is owned by exactly one
// worker; engines never touch a driver directly but talk to it through
// an emitter, with the driver's exported methods doubling as message
// topics (see BindTopics).
package driver

import (
	"context"
	"time"
)

// Sides name the two repositories of an account as the engines address
// them. They appear in topic arguments and log lines.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Message is one mail message in transit between repositories. It is
// produced by Fetch on one side and consumed by Append on the other.
type Message struct {
	// ID is the normalized RFC 5322 message id, without angle brackets.
	// Messages lacking one get a content-hash id so they still have a
	// stable identity across runs.
	ID string `json:"id"`
	// UID is the message's UID on the repository it was fetched from.
	UID uint32 `json:"uid"`
	// Raw holds the full RFC 5322 bytes.
	Raw []byte `json:"raw"`
	// Date is the message's internal date when the repository knows it,
	// zero otherwise.
	Date time.Time `json:"date,omitempty"`
}

// Driver is the access contract a repository backend implements.
// Exported methods become topics when the driver is bound to a
// receiver; methods prefixed with Fw are framework hooks and stay
// unbound.
type Driver interface {
	// FwInit prepares the driver after construction, before any topic
	// can reach it. The factory calls it exactly once.
	FwInit() error
	// FwKind reports the repository type, e.g. "IMAP" or "Maildir".
	FwKind() string
	// FwRepositoryName reports the configured repository name.
	FwRepositoryName() string

	// Connect establishes the transport to the repository.
	Connect(ctx context.Context) error
	// Login authenticates. Drivers without credentials treat it as a
	// no-op.
	Login(ctx context.Context) error
	// Folders lists the selectable folders.
	Folders(ctx context.Context) ([]string, error)
	// Select makes folder current and returns its message count.
	Select(ctx context.Context, folder string) (int, error)
	// SearchUIDs returns the UIDs of all messages in the current
	// folder, ascending.
	SearchUIDs(ctx context.Context) ([]uint32, error)
	// Fetch retrieves one message from the current folder by UID.
	Fetch(ctx context.Context, uid uint32) (Message, error)
	// Append stores a message into the current folder and returns the
	// UID it got there.
	Append(ctx context.Context, msg Message) (uint32, error)
	// Logout closes the connection. Safe to call when not connected.
	Logout(ctx context.Context) error
}
