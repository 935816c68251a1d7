// Package sqlite implements the domain persistence ports on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	uri                  TEXT PRIMARY KEY,
	text                 TEXT NOT NULL,
	timestamp            INTEGER NOT NULL,
	author_did           TEXT,
	has_media            INTEGER NOT NULL DEFAULT 0,
	is_first_person      INTEGER NOT NULL DEFAULT 0,
	image_count          INTEGER NOT NULL DEFAULT 0,
	has_alt_text         INTEGER NOT NULL DEFAULT 0,
	link_count           INTEGER NOT NULL DEFAULT 0,
	promo_link_count     INTEGER NOT NULL DEFAULT 0,
	keyword_score        REAL NOT NULL DEFAULT 0,
	hashtag_score        REAL NOT NULL DEFAULT 0,
	semantic_score       REAL NOT NULL DEFAULT 0,
	classification_score REAL NOT NULL DEFAULT 0,
	final_score          REAL NOT NULL DEFAULT 0,
	priority             REAL NOT NULL DEFAULT 0,
	confidence           TEXT NOT NULL DEFAULT 'low',
	post_type            TEXT NOT NULL DEFAULT 'other'
);
CREATE INDEX IF NOT EXISTS idx_posts_feed ON posts (priority DESC, timestamp DESC, uri ASC);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts (author_did);
CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON posts (timestamp);

CREATE TABLE IF NOT EXISTS likes (
	post_uri TEXT NOT NULL,
	like_uri TEXT NOT NULL,
	PRIMARY KEY (post_uri, like_uri),
	FOREIGN KEY (post_uri) REFERENCES posts(uri) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS reposts (
	post_uri     TEXT NOT NULL,
	repost_uri   TEXT NOT NULL,
	reposter_did TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	PRIMARY KEY (post_uri, repost_uri),
	FOREIGN KEY (post_uri) REFERENCES posts(uri) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_reposts_reposter ON reposts (reposter_did, timestamp);

CREATE TABLE IF NOT EXISTS replies (
	post_uri   TEXT NOT NULL,
	reply_uri  TEXT NOT NULL,
	author_did TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	PRIMARY KEY (post_uri, reply_uri),
	FOREIGN KEY (post_uri) REFERENCES posts(uri) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_interactions (
	user_did         TEXT NOT NULL,
	post_uri         TEXT NOT NULL,
	interaction_type TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	PRIMARY KEY (user_did, post_uri, interaction_type),
	FOREIGN KEY (post_uri) REFERENCES posts(uri) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS engagement_cache (
	post_uri       TEXT PRIMARY KEY,
	reply_count    INTEGER NOT NULL DEFAULT 0,
	repost_count   INTEGER NOT NULL DEFAULT 0,
	like_count     INTEGER NOT NULL DEFAULT 0,
	velocity_score REAL NOT NULL DEFAULT 0,
	last_updated   INTEGER NOT NULL,
	FOREIGN KEY (post_uri) REFERENCES posts(uri) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS spammers (
	did              TEXT PRIMARY KEY,
	reason           TEXT NOT NULL,
	repost_frequency REAL,
	flagged_at       INTEGER NOT NULL,
	auto_detected    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// Pragmas ride on the DSN so they apply to every pooled connection, not just
// the one that happened to run an Exec. _txlock makes every transaction BEGIN
// IMMEDIATE, taking the write lock up front instead of on first write.
const dsnPragmas = "?_txlock=immediate" +
	"&_pragma=busy_timeout(2000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)"

// Store implements domain.PostStore, domain.EngagementStore, domain.SpamStore,
// and domain.CursorStore on a single SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path, applies the connection
// pragmas, and bootstraps the schema. The caller should call Close when the
// store is no longer needed.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// beginImmediate starts a write transaction. The _txlock=immediate DSN option
// makes it BEGIN IMMEDIATE; SQLite serializes writers and the busy_timeout
// pragma turns contention into a short wait instead of an error.
func (s *Store) beginImmediate(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}
