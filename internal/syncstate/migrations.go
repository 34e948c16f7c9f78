package syncstate

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS uid_map (
	account    TEXT NOT NULL,
	folder     TEXT NOT NULL,
	message_id TEXT NOT NULL,
	left_uid   INTEGER NOT NULL,
	right_uid  INTEGER NOT NULL,
	synced_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account, folder, message_id)
);

CREATE INDEX IF NOT EXISTS idx_uid_map_folder ON uid_map(account, folder);

CREATE TABLE IF NOT EXISTS maildir_uids (
	repository  TEXT NOT NULL,
	folder      TEXT NOT NULL,
	message_key TEXT NOT NULL,
	uid         INTEGER NOT NULL,
	PRIMARY KEY (repository, folder, message_key),
	UNIQUE (repository, folder, uid)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
