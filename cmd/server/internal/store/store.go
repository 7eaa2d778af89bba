// Package store opens the SQLite database and applies the schema.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    is_admin      INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    sort_order  INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
    id                  TEXT PRIMARY KEY,
    author_id           TEXT NOT NULL REFERENCES users(id),
    category_id         TEXT REFERENCES categories(id),
    name                TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published', 'archived')),
    is_public           INTEGER NOT NULL DEFAULT 1,
    is_content_public   INTEGER NOT NULL DEFAULT 1,
    require_application INTEGER NOT NULL DEFAULT 0,
    is_banned           INTEGER NOT NULL DEFAULT 0,
    ban_reason          TEXT NOT NULL DEFAULT '',
    view_count          INTEGER NOT NULL DEFAULT 0,
    use_count           INTEGER NOT NULL DEFAULT 0,
    like_count          INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL,
    deleted_at          TEXT
);
CREATE INDEX IF NOT EXISTS idx_prompts_author ON prompts(author_id);
CREATE INDEX IF NOT EXISTS idx_prompts_status ON prompts(status);
CREATE INDEX IF NOT EXISTS idx_prompts_deleted ON prompts(deleted_at);

CREATE TABLE IF NOT EXISTS prompt_contents (
    id         TEXT PRIMARY KEY,
    prompt_id  TEXT NOT NULL REFERENCES prompts(id),
    role       TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
    kind       TEXT NOT NULL DEFAULT 'text',
    sort_order INTEGER NOT NULL DEFAULT 0,
    enabled    INTEGER NOT NULL DEFAULT 1,
    text       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contents_prompt ON prompt_contents(prompt_id);

CREATE TABLE IF NOT EXISTS prompt_parameters (
    id          TEXT PRIMARY KEY,
    content_id  TEXT NOT NULL REFERENCES prompt_contents(id),
    name        TEXT NOT NULL,
    required    INTEGER NOT NULL DEFAULT 1,
    description TEXT NOT NULL DEFAULT '',
    sort_order  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_parameters_content ON prompt_parameters(content_id);

CREATE TABLE IF NOT EXISTS permissions (
    id         TEXT PRIMARY KEY,
    prompt_id  TEXT NOT NULL REFERENCES prompts(id),
    user_id    TEXT NOT NULL REFERENCES users(id),
    action     TEXT NOT NULL CHECK (action IN ('view', 'use', 'edit')),
    created_at TEXT NOT NULL,
    UNIQUE (prompt_id, user_id, action)
);
CREATE INDEX IF NOT EXISTS idx_permissions_user ON permissions(user_id);

CREATE TABLE IF NOT EXISTS applications (
    id          TEXT PRIMARY KEY,
    prompt_id   TEXT NOT NULL REFERENCES prompts(id),
    user_id     TEXT NOT NULL REFERENCES users(id),
    reason      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    reviewer_id TEXT,
    review_note TEXT NOT NULL DEFAULT '',
    reviewed_at TEXT,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_prompt ON applications(prompt_id);
CREATE INDEX IF NOT EXISTS idx_applications_user ON applications(user_id);

CREATE TABLE IF NOT EXISTS prompt_groups (
    id          TEXT PRIMARY KEY,
    author_id   TEXT NOT NULL REFERENCES users(id),
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_group_items (
    id          TEXT PRIMARY KEY,
    group_id    TEXT NOT NULL REFERENCES prompt_groups(id),
    prompt_id   TEXT NOT NULL REFERENCES prompts(id),
    stage_type  TEXT NOT NULL,
    is_required INTEGER NOT NULL DEFAULT 1,
    sort_order  INTEGER NOT NULL DEFAULT 0,
    UNIQUE (group_id, stage_type)
);
CREATE INDEX IF NOT EXISTS idx_group_items_group ON prompt_group_items(group_id);

CREATE TABLE IF NOT EXISTS books (
    id         TEXT PRIMARY KEY,
    author_id  TEXT NOT NULL REFERENCES users(id),
    group_id   TEXT NOT NULL REFERENCES prompt_groups(id),
    title      TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'draft',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_author ON books(author_id);

CREATE TABLE IF NOT EXISTS book_stage_results (
    id            TEXT PRIMARY KEY,
    book_id       TEXT NOT NULL REFERENCES books(id),
    stage_type    TEXT NOT NULL,
    unit_key      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
    input_params  TEXT NOT NULL DEFAULT '{}',
    raw_output    TEXT NOT NULL DEFAULT '',
    parsed_output TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    UNIQUE (book_id, stage_type, unit_key)
);
CREATE INDEX IF NOT EXISTS idx_stage_results_book ON book_stage_results(book_id);

CREATE TABLE IF NOT EXISTS logs (
    id          TEXT PRIMARY KEY,
    log_type    TEXT NOT NULL,
    level       TEXT NOT NULL,
    action      TEXT NOT NULL,
    user_id     TEXT NOT NULL DEFAULT '',
    ip          TEXT NOT NULL DEFAULT '',
    path        TEXT NOT NULL DEFAULT '',
    method      TEXT NOT NULL DEFAULT '',
    status_code INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_user ON logs(user_id);
CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(log_type);
CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_created ON logs(created_at DESC);

CREATE TABLE IF NOT EXISTS announcements (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    content    TEXT NOT NULL DEFAULT '',
    kind       TEXT NOT NULL DEFAULT 'notice' CHECK (kind IN ('system', 'activity', 'maintenance', 'feature', 'notice')),
    is_active  INTEGER NOT NULL DEFAULT 1,
    publish_at TEXT,
    expire_at  TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_reports (
    id          TEXT PRIMARY KEY,
    prompt_id   TEXT NOT NULL REFERENCES prompts(id),
    reporter_id TEXT NOT NULL REFERENCES users(id),
    reason      TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_prompt ON prompt_reports(prompt_id);
`

// Open opens (creating if necessary) the database at dbPath and applies the schema.
func Open(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return db, nil
}

// OpenMemory opens a fresh in-memory database, used by tests.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Each pooled connection would otherwise get its own empty :memory: database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return db, nil
}
