package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/filedex/filedex/pkg/types"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL keeps searches readable while the build writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) the catalog database at dbPath and
// applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const entryColumns = `id, path, name, size_bytes, mod_time, kind, mime_type,
	fingerprint, extracted_text, metadata_json, description, embedding,
	status, error_detail, processed_at, created_at, updated_at`

// UpsertEntry atomically replaces the entry keyed by path. The single
// statement runs in its own implicit transaction, so a crash leaves either
// the old row or the new row, never a half-written one.
func (s *SQLiteStore) UpsertEntry(ctx context.Context, e *types.CatalogEntry) error {
	metaJSON, metaText, err := encodeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata for %s: %v", types.ErrStoreWrite, e.Path, err)
	}

	var embedding []byte
	if len(e.Embedding) > 0 {
		embedding = serializeVector(e.Embedding)
	}

	query := `
		INSERT INTO entries (path, name, size_bytes, mod_time, kind, mime_type,
			fingerprint, extracted_text, metadata_json, metadata_text, description,
			embedding, status, error_detail, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			kind = excluded.kind,
			mime_type = excluded.mime_type,
			fingerprint = excluded.fingerprint,
			extracted_text = excluded.extracted_text,
			metadata_json = excluded.metadata_json,
			metadata_text = excluded.metadata_text,
			description = excluded.description,
			embedding = excluded.embedding,
			status = excluded.status,
			error_detail = excluded.error_detail,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var processedAt any
	if !e.ProcessedAt.IsZero() {
		processedAt = e.ProcessedAt
	}
	err = s.db.QueryRowContext(ctx, query,
		e.Path, e.Name, e.SizeBytes, e.ModTime, string(e.Kind), e.MimeType,
		e.Fingerprint, e.ExtractedText, metaJSON, metaText, e.Description,
		embedding, string(e.Status), e.ErrorDetail, processedAt, now, now,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", types.ErrStoreWrite, e.Path, err)
	}
	e.UpdatedAt = now
	return nil
}

// GetEntry returns the entry for the given path, or types.ErrNotFound.
func (s *SQLiteStore) GetEntry(ctx context.Context, path string) (*types.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM entries WHERE path = ?", entryColumns), path)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	return entry, err
}

// ListEntries returns every entry ordered by path.
func (s *SQLiteStore) ListEntries(ctx context.Context) ([]*types.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM entries ORDER BY path", entryColumns))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes the entry for the given path, if present.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", types.ErrStoreWrite, path, err)
	}
	return nil
}

// SearchText performs BM25 full-text search over processed entries.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	match := buildFTSMatch(query)
	if match == "" {
		return []LexicalResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT
			e.path,
			bm25(entries_fts) as score,
			snippet(entries_fts, 1, '', '', '...', 12) as snip
		FROM entries_fts
		INNER JOIN entries e ON entries_fts.rowid = e.id
		WHERE entries_fts MATCH ?
		AND e.status = ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, match, string(types.StatusProcessed), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]LexicalResult, 0)
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.Path, &r.Score, &r.Snippet); err != nil {
			return nil, err
		}
		// BM25 scores are negative, lower is better. Normalize into (0, 1].
		r.Score = 1.0 / (1.0 + math.Abs(r.Score)/50.0)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListEmbeddings returns the stored vectors of processed entries.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, embedding FROM entries
		WHERE status = ? AND embedding IS NOT NULL
	`, string(types.StatusProcessed))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []EmbeddingRow
	for rows.Next() {
		var row EmbeddingRow
		var blob []byte
		if err := rows.Scan(&row.Path, &blob); err != nil {
			return nil, err
		}
		row.Vector = deserializeVector(blob)
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveJob persists the singleton job record.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *types.BuildJob) error {
	query := `
		INSERT INTO build_jobs (id, job_id, state, root_path, total_files,
			processed_count, skipped_count, error_count, current_path,
			error_detail, started_at, updated_at, completed_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_id = excluded.job_id,
			state = excluded.state,
			root_path = excluded.root_path,
			total_files = excluded.total_files,
			processed_count = excluded.processed_count,
			skipped_count = excluded.skipped_count,
			error_count = excluded.error_count,
			current_path = excluded.current_path,
			error_detail = excluded.error_detail,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`
	now := time.Now()
	var completedAt any
	if !job.CompletedAt.IsZero() {
		completedAt = job.CompletedAt
	}
	_, err := s.db.ExecContext(ctx, query,
		job.ID, string(job.State), job.RootPath, job.TotalFiles,
		job.ProcessedCount, job.SkippedCount, job.ErrorCount, job.CurrentPath,
		job.ErrorDetail, job.StartedAt, now, completedAt)
	if err != nil {
		return fmt.Errorf("%w: save job: %v", types.ErrStoreWrite, err)
	}
	job.UpdatedAt = now
	return nil
}

// LoadJob returns the persisted job record, or types.ErrNotFound.
func (s *SQLiteStore) LoadJob(ctx context.Context) (*types.BuildJob, error) {
	var job types.BuildJob
	var state string
	var startedAt, updatedAt, completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, state, root_path, total_files, processed_count,
			skipped_count, error_count, current_path, error_detail,
			started_at, updated_at, completed_at
		FROM build_jobs WHERE id = 1
	`).Scan(&job.ID, &state, &job.RootPath, &job.TotalFiles, &job.ProcessedCount,
		&job.SkippedCount, &job.ErrorCount, &job.CurrentPath, &job.ErrorDetail,
		&startedAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.State = types.JobState(state)
	if startedAt.Valid {
		job.StartedAt = startedAt.Time
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	return &job, nil
}

// Stats summarizes the catalog contents.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByKind:   map[string]int{},
		ByStatus: map[string]int{},
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM entries").
		Scan(&stats.TotalEntries, &stats.TotalSizeBytes)
	if err != nil {
		return nil, err
	}

	if err := s.countsInto(ctx, "kind", stats.ByKind); err != nil {
		return nil, err
	}
	if err := s.countsInto(ctx, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) countsInto(ctx context.Context, column string, dst map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM entries GROUP BY %s", column, column))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

// rowScanner lets scanEntry work over both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*types.CatalogEntry, error) {
	var e types.CatalogEntry
	var kind, status string
	var metaJSON string
	var embedding []byte
	var modTime, processedAt sql.NullTime

	err := row.Scan(&e.ID, &e.Path, &e.Name, &e.SizeBytes, &modTime, &kind,
		&e.MimeType, &e.Fingerprint, &e.ExtractedText, &metaJSON, &e.Description,
		&embedding, &status, &e.ErrorDetail, &processedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Kind = types.FileKind(kind)
	e.Status = types.EntryStatus(status)
	if modTime.Valid {
		e.ModTime = modTime.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = processedAt.Time
	}
	if len(embedding) > 0 {
		e.Embedding = deserializeVector(embedding)
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", e.Path, err)
		}
	}
	return &e, nil
}

// encodeMetadata produces the JSON persistence form and a flattened text
// form indexed by FTS so metadata values (EXIF dates, audio tags) are
// lexically matchable.
func encodeMetadata(meta map[string]any) (string, string, error) {
	if len(meta) == 0 {
		return "{}", "", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", "", err
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %v ", k, meta[k])
	}
	return string(raw), strings.TrimSpace(b.String()), nil
}

// buildFTSMatch turns a free-text query into an OR-joined FTS5 match
// expression of quoted terms. Quoting neutralizes FTS operators.
func buildFTSMatch(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !isWordRune(r)
	})
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r > 127
}
