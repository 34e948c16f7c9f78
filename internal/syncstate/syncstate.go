// Package syncstate persists what past sync runs learned: which message
// landed where. The store backs two consumers with different needs. The
// folder engine records, per account and folder, the (message id, left
// UID, right UID) triples it has already propagated, so the next run can
// diff live mailboxes against known state instead of re-copying
// everything. Maildir repositories, which have no native UID concept,
// lease stable numeric UIDs from the store keyed by the message file's
// immutable basename.
//
// A single SQLite file holds both tables. The store is safe for
// concurrent use: folder workers running in parallel are serialized on
// one connection rather than racing for SQLite's write lock.
package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// UIDPair records where one message lives on both sides of an account.
type UIDPair struct {
	Left  uint32 `db:"left_uid"`
	Right uint32 `db:"right_uid"`
}

// Store is a handle on the sync-state database. It is safe for
// concurrent use by multiple workers.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the sync-state database at path, enables WAL
// mode, and applies any pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sync-state db: %w", err)
	}

	// Folder workers write in parallel; a single connection serializes
	// them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// WAL keeps the file consistent under a crash and cheap to append to.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Pairs returns every recorded message placement for one folder of one
// account, keyed by message id.
func (s *Store) Pairs(ctx context.Context, account, folder string) (map[string]UIDPair, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT message_id, left_uid, right_uid FROM uid_map WHERE account = ? AND folder = ?",
		account, folder,
	)
	if err != nil {
		return nil, fmt.Errorf("querying uid map for %s/%s: %w", account, folder, err)
	}
	defer rows.Close()

	pairs := make(map[string]UIDPair)
	for rows.Next() {
		var messageID string
		var pair UIDPair
		if err := rows.Scan(&messageID, &pair.Left, &pair.Right); err != nil {
			return nil, fmt.Errorf("scanning uid map row: %w", err)
		}
		pairs[messageID] = pair
	}

	return pairs, rows.Err()
}

// AddPair records (or updates) where one message lives on both sides.
func (s *Store) AddPair(ctx context.Context, account, folder, messageID string, pair UIDPair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO uid_map (account, folder, message_id, left_uid, right_uid)
		VALUES (?, ?, ?, ?, ?)`,
		account, folder, messageID, pair.Left, pair.Right,
	)
	if err != nil {
		return fmt.Errorf("recording uid pair for %s/%s: %w", account, folder, err)
	}
	return nil
}

// RemovePair forgets a recorded placement, typically after the message
// disappeared from both sides.
func (s *Store) RemovePair(ctx context.Context, account, folder, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM uid_map WHERE account = ? AND folder = ? AND message_id = ?",
		account, folder, messageID,
	)
	if err != nil {
		return fmt.Errorf("removing uid pair for %s/%s: %w", account, folder, err)
	}
	return nil
}

// MaildirUID returns the stable UID leased to a maildir message file,
// allocating the next free number on first sight. The key must be the
// immutable part of the file name (the part before the info suffix),
// which survives flag changes.
func (s *Store) MaildirUID(ctx context.Context, repository, folder, key string) (uint32, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning uid allocation: %w", err)
	}
	defer tx.Rollback()

	var uid uint32
	err = tx.GetContext(ctx, &uid,
		"SELECT uid FROM maildir_uids WHERE repository = ? AND folder = ? AND message_key = ?",
		repository, folder, key,
	)
	if err == nil {
		return uid, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up maildir uid: %w", err)
	}

	err = tx.GetContext(ctx, &uid,
		"SELECT COALESCE(MAX(uid), 0) + 1 FROM maildir_uids WHERE repository = ? AND folder = ?",
		repository, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("allocating maildir uid: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO maildir_uids (repository, folder, message_key, uid)
		VALUES (?, ?, ?, ?)`,
		repository, folder, key, uid,
	)
	if err != nil {
		return 0, fmt.Errorf("recording maildir uid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing uid allocation: %w", err)
	}
	return uid, nil
}

// MaildirKey resolves a leased UID back to the message file key it was
// allocated for.
func (s *Store) MaildirKey(ctx context.Context, repository, folder string, uid uint32) (string, error) {
	var key string
	err := s.db.GetContext(ctx, &key,
		"SELECT message_key FROM maildir_uids WHERE repository = ? AND folder = ? AND uid = ?",
		repository, folder, uid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no maildir message with uid %d in %s/%s", uid, repository, folder)
	}
	if err != nil {
		return "", fmt.Errorf("resolving maildir uid %d: %w", uid, err)
	}
	return key, nil
}

// ForgetMaildirKey releases the lease for a message file that no longer
// exists on disk.
func (s *Store) ForgetMaildirKey(ctx context.Context, repository, folder, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM maildir_uids WHERE repository = ? AND folder = ? AND message_key = ?",
		repository, folder, key,
	)
	if err != nil {
		return fmt.Errorf("forgetting maildir key %s: %w", key, err)
	}
	return nil
}
