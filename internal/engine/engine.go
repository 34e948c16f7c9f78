// Package engine holds the two sync engines. SyncAccounts drains a
// shared queue of account names, drives both repository drivers of each
// account up to the folder list, and hands the folder fan-out to its
// referent. SyncFolders drains a shared queue of folder names and
// propagates missing messages between the two sides.
//
// Engines never touch drivers or architects directly: everything goes
// through emitters, wrapped here in small typed clients so call sites
// stay free of topic strings and type assertions.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/c4ffein/imapfw/internal/driver"
	"github.com/c4ffein/imapfw/pkg/edmp"
)

// Referent topics engines emit on. The architects register handlers
// under the same names.
const (
	TopicSyncFolders        = "syncFolders"
	TopicAreSyncFoldersDone = "areSyncFoldersDone"
	TopicAccountEngineDone  = "accountEngineDone"
	TopicFolderEngineDone   = "folderEngineDone"
)

// pollDelay paces the engine loops that wait on a referent condition.
const pollDelay = 50 * time.Millisecond

// DriverClient is the engine-side handle on one driver worker.
type DriverClient struct {
	e *edmp.Emitter
}

// NewDriverClient wraps an emitter whose receiver is served by a driver
// runner.
func NewDriverClient(e *edmp.Emitter) *DriverClient {
	return &DriverClient{e: e}
}

// Emitter exposes the underlying emitter, for architects that pass the
// link on.
func (c *DriverClient) Emitter() *edmp.Emitter { return c.e }

// BuildDriverAsync, ConnectAsync and LoginAsync queue up the driver
// bring-up without waiting. They are fenced by the first synchronous
// call that follows; a failure in any of them surfaces there.
func (c *DriverClient) BuildDriverAsync(account, side string) error {
	return c.e.Emit("buildDriver", account, side)
}

func (c *DriverClient) ConnectAsync() error { return c.e.Emit("connect") }
func (c *DriverClient) LoginAsync() error   { return c.e.Emit("login") }

// BuildDriver builds the driver for one side of an account and waits.
func (c *DriverClient) BuildDriver(ctx context.Context, account, side string) error {
	_, err := c.e.Call(ctx, "buildDriver", account, side)
	return err
}

// BuildDriverFromRepository builds the driver for the named repository
// and waits. Used where no account is in play, like examine.
func (c *DriverClient) BuildDriverFromRepository(ctx context.Context, repository string) error {
	_, err := c.e.Call(ctx, "buildDriverFromRepository", repository)
	return err
}

// IsDriverBuilt reports whether the worker has a driver bound.
func (c *DriverClient) IsDriverBuilt(ctx context.Context) (bool, error) {
	reply, err := c.e.Call(ctx, "isDriverBuilt")
	if err != nil {
		return false, err
	}
	return asBool(reply, "isDriverBuilt")
}

// Connect waits for the transport to come up.
func (c *DriverClient) Connect(ctx context.Context) error {
	_, err := c.e.Call(ctx, "connect")
	return err
}

// Login waits for authentication.
func (c *DriverClient) Login(ctx context.Context) error {
	_, err := c.e.Call(ctx, "login")
	return err
}

// Capability reports the server capabilities of an IMAP-backed link.
// Links over drivers without the topic answer with a fault.
func (c *DriverClient) Capability(ctx context.Context) ([]string, error) {
	reply, err := c.e.Call(ctx, "capability")
	if err != nil {
		return nil, err
	}
	caps, ok := reply.([]string)
	if !ok {
		return nil, badReply("capability", reply, "[]string")
	}
	return caps, nil
}

// Folders returns the selectable folders. Because the reply crosses the
// same queue as the bring-up emits, it also fences them.
func (c *DriverClient) Folders(ctx context.Context) ([]string, error) {
	reply, err := c.e.Call(ctx, "folders")
	if err != nil {
		return nil, err
	}
	folders, ok := reply.([]string)
	if !ok {
		return nil, badReply("folders", reply, "[]string")
	}
	return folders, nil
}

// Select makes folder current on the driver and returns its message
// count.
func (c *DriverClient) Select(ctx context.Context, folder string) (int, error) {
	reply, err := c.e.Call(ctx, "select", folder)
	if err != nil {
		return 0, err
	}
	count, ok := reply.(int)
	if !ok {
		return 0, badReply("select", reply, "int")
	}
	return count, nil
}

// SearchUIDs lists every UID in the current folder.
func (c *DriverClient) SearchUIDs(ctx context.Context) ([]uint32, error) {
	reply, err := c.e.Call(ctx, "searchUIDs")
	if err != nil {
		return nil, err
	}
	uids, ok := reply.([]uint32)
	if !ok {
		return nil, badReply("searchUIDs", reply, "[]uint32")
	}
	return uids, nil
}

// Fetch retrieves one message by UID.
func (c *DriverClient) Fetch(ctx context.Context, uid uint32) (driver.Message, error) {
	reply, err := c.e.Call(ctx, "fetch", uid)
	if err != nil {
		return driver.Message{}, err
	}
	msg, ok := reply.(driver.Message)
	if !ok {
		return driver.Message{}, badReply("fetch", reply, "driver.Message")
	}
	return msg, nil
}

// Append stores a message in the current folder and returns its new
// UID.
func (c *DriverClient) Append(ctx context.Context, msg driver.Message) (uint32, error) {
	reply, err := c.e.Call(ctx, "append", msg)
	if err != nil {
		return 0, err
	}
	uid, ok := reply.(uint32)
	if !ok {
		return 0, badReply("append", reply, "uint32")
	}
	return uid, nil
}

// Logout closes the driver's connection and waits.
func (c *DriverClient) Logout(ctx context.Context) error {
	_, err := c.e.Call(ctx, "logout")
	return err
}

// AccountReferent is the account engine's handle on its supervising
// architect.
type AccountReferent struct {
	e *edmp.Emitter
}

// NewAccountReferent wraps the referent emitter of an account worker.
func NewAccountReferent(e *edmp.Emitter) *AccountReferent {
	return &AccountReferent{e: e}
}

// SyncFolders asks the architect to fan the account's folders out over
// maxWorkers folder workers. It returns once the workers are started.
func (r *AccountReferent) SyncFolders(ctx context.Context, account string, folders []string, maxWorkers int) error {
	_, err := r.e.Call(ctx, TopicSyncFolders, account, folders, maxWorkers)
	return err
}

// AreSyncFoldersDone reports whether every folder worker of the current
// fan-out has resolved.
func (r *AccountReferent) AreSyncFoldersDone(ctx context.Context) (bool, error) {
	reply, err := r.e.Call(ctx, TopicAreSyncFoldersDone)
	if err != nil {
		return false, err
	}
	return asBool(reply, TopicAreSyncFoldersDone)
}

// Done reports the engine's final code. It never blocks.
func (r *AccountReferent) Done(code int) error {
	return r.e.Emit(TopicAccountEngineDone, code)
}

// FolderReferent is the folder engine's handle on its supervising
// architect.
type FolderReferent struct {
	e *edmp.Emitter
}

// NewFolderReferent wraps the referent emitter of a folder worker.
func NewFolderReferent(e *edmp.Emitter) *FolderReferent {
	return &FolderReferent{e: e}
}

// Done reports the engine's final code. It never blocks.
func (r *FolderReferent) Done(code int) error {
	return r.e.Emit(TopicFolderEngineDone, code)
}

// nap sleeps one poll interval or returns the cancellation error.
func nap(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pollDelay):
		return nil
	}
}

func asBool(reply any, topic string) (bool, error) {
	b, ok := reply.(bool)
	if !ok {
		return false, badReply(topic, reply, "bool")
	}
	return b, nil
}

func badReply(topic string, reply any, want string) error {
	return fmt.Errorf("topic %q replied %T, want %s", topic, reply, want)
}
