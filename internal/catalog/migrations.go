package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion tracks the database schema version.
const CurrentSchemaVersion = 1

// Migration is one ordered schema step.
type Migration struct {
	Version int
	Up      string
}

// AllMigrations contains every migration in application order.
var AllMigrations = []Migration{
	{Version: 1, Up: migrationV1Up},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Catalog entries, one per distinct path
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    size_bytes INTEGER DEFAULT 0,
    mod_time TIMESTAMP,
    kind TEXT NOT NULL,
    mime_type TEXT,
    fingerprint TEXT NOT NULL,
    extracted_text TEXT DEFAULT '',
    metadata_json TEXT DEFAULT '{}',
    metadata_text TEXT DEFAULT '',
    description TEXT DEFAULT '',
    embedding BLOB,
    status TEXT NOT NULL,
    error_detail TEXT DEFAULT '',
    processed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
CREATE INDEX IF NOT EXISTS idx_entries_fingerprint ON entries(fingerprint);

-- Full-text search over the lexically matchable fields
CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    name, description, extracted_text, metadata_text,
    content='entries',
    content_rowid='id'
);

-- Triggers keep FTS in sync with the content table
CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, name, description, extracted_text, metadata_text)
    VALUES (new.id, new.name, new.description, new.extracted_text, new.metadata_text);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, name, description, extracted_text, metadata_text)
    VALUES ('delete', old.id, old.name, old.description, old.extracted_text, old.metadata_text);
END;

CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, name, description, extracted_text, metadata_text)
    VALUES ('delete', old.id, old.name, old.description, old.extracted_text, old.metadata_text);
    INSERT INTO entries_fts(rowid, name, description, extracted_text, metadata_text)
    VALUES (new.id, new.name, new.description, new.extracted_text, new.metadata_text);
END;

-- Singleton build job / checkpoint record
CREATE TABLE IF NOT EXISTS build_jobs (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    job_id TEXT NOT NULL,
    state TEXT NOT NULL,
    root_path TEXT NOT NULL,
    total_files INTEGER DEFAULT 0,
    processed_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    current_path TEXT DEFAULT '',
    error_detail TEXT DEFAULT '',
    started_at TIMESTAMP,
    updated_at TIMESTAMP,
    completed_at TIMESTAMP
);
`

// ApplyMigrations brings the schema up to CurrentSchemaVersion.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	applied, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		if m.Version <= applied {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func appliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version sql.NullInt64
	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
