package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/memerr"
	"github.com/dshills/mcp-memoria/internal/memory"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every query
// method below serve either a bare connection or an in-flight
// transaction without duplicating SQL.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore is the Store implementation backing one scope's database
// file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", memerr.ErrStore, err)
	}
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply migrations: %v", memerr.ErrStore, err)
	}
	return &SQLiteStore{db: db}, nil
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func tagsToJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func tagsFromJSON(raw string) []string {
	var tags []string
	_ = json.Unmarshal([]byte(raw), &tags)
	return tags
}

// Insert writes a single memory row.
func (s *SQLiteStore) Insert(ctx context.Context, m *memory.Memory) error {
	return s.insertWithQuerier(ctx, s.db, m)
}

// InsertBatch writes every sibling chunk of one parent memory within a
// single transaction: either all chunks land or none do.
func (s *SQLiteStore) InsertBatch(ctx context.Context, ms []*memory.Memory) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", memerr.ErrStore, err)
	}
	for _, m := range ms {
		if err := s.insertWithQuerier(ctx, tx, m); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", memerr.ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) insertWithQuerier(ctx context.Context, q querier, m *memory.Memory) error {
	now := nowMillis()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = fromMillis(now)
	}
	m.UpdatedAt = fromMillis(now)

	var sessionKey interface{}
	if m.SessionKey != "" {
		sessionKey = m.SessionKey
	}
	var parentID interface{}
	if m.ParentID != "" {
		parentID = m.ParentID
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO memories (
			id, scope, kind, title, content, tags_json, parent_id,
			chunk_index, chunk_total, shingle_hash, session_key,
			created_at, updated_at, embedding, embedding_dim, embedding_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, string(m.Scope), m.Kind, m.Title, m.Content, tagsToJSON(m.Tags), parentID,
		m.ChunkIndex, m.ChunkTotal, int64(m.ShingleHash), sessionKey,
		m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), nil, 0, string(memory.EmbeddingPending),
	)
	if err != nil {
		return fmt.Errorf("%w: insert memory: %v", memerr.ErrStore, err)
	}
	m.EmbeddingStatus = memory.EmbeddingPending
	return nil
}

// UpsertBySessionKey resolves the conversation-capture path: a save
// carrying a session key updates the existing row for that key instead
// of creating a new one.
func (s *SQLiteStore) UpsertBySessionKey(ctx context.Context, m *memory.Memory) (string, bool, error) {
	if m.SessionKey == "" {
		return "", false, fmt.Errorf("%w: session key required", memerr.ErrInvalidInput)
	}

	var existingID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE session_key = ?`, m.SessionKey).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		if m.ID == "" {
			return "", false, fmt.Errorf("%w: id required for new session memory", memerr.ErrInvalidInput)
		}
		if err := s.Insert(ctx, m); err != nil {
			return "", false, err
		}
		return m.ID, false, nil
	case err != nil:
		return "", false, fmt.Errorf("%w: lookup session key: %v", memerr.ErrStore, err)
	}

	now := nowMillis()
	_, err = s.db.ExecContext(ctx, `
		UPDATE memories
		SET content = ?, title = ?, tags_json = ?, updated_at = ?,
		    embedding = NULL, embedding_dim = 0, embedding_status = ?,
		    shingle_hash = ?
		WHERE id = ?
	`, m.Content, m.Title, tagsToJSON(m.Tags), now, string(memory.EmbeddingPending), int64(m.ShingleHash), existingID)
	if err != nil {
		return "", false, fmt.Errorf("%w: update session memory: %v", memerr.ErrStore, err)
	}
	return existingID, true, nil
}

// Get fetches one memory by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scope, kind, title, content, tags_json, parent_id,
		       chunk_index, chunk_total, shingle_hash, session_key,
		       created_at, updated_at, embedding, embedding_dim, embedding_status
		FROM memories WHERE id = ?
	`, id)
	return scanMemory(row)
}

// Delete removes a memory row (and, via trigger, its FTS shadow entry).
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete memory: %v", memerr.ErrStore, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerr.ErrNotFound
	}
	return nil
}

// List returns memories newest-first, optionally filtered.
func (s *SQLiteStore) List(ctx context.Context, f memory.Filters, limit, offset int) ([]memory.Memory, error) {
	query := `
		SELECT id, scope, kind, title, content, tags_json, parent_id,
		       chunk_index, chunk_total, shingle_hash, session_key,
		       created_at, updated_at, embedding, embedding_dim, embedding_status
		FROM memories WHERE 1=1
	`
	var args []interface{}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		query += " AND updated_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var out []memory.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		if len(f.Tags) > 0 && !hasAnyTag(m.Tags, f.Tags) {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// UpdateEmbedding stores a computed vector and marks the row ready.
func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	blob := serializeVector(vector)
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET embedding = ?, embedding_dim = ?, embedding_status = ?, updated_at = ?
		WHERE id = ?
	`, blob, len(vector), string(memory.EmbeddingReady), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("%w: update embedding: %v", memerr.ErrStore, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerr.ErrNotFound
	}
	return nil
}

// MarkFailed records that embedding inference failed for id.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding_status = ?, updated_at = ? WHERE id = ?
	`, string(memory.EmbeddingFailed), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("%w: mark failed (%s): %v", memerr.ErrStore, reason, err)
	}
	return nil
}

// PendingIDs returns ids still awaiting embedding that were created at or
// before olderThan, oldest first; the worker's orphan-recovery scan uses
// it to find rows stuck pending.
func (s *SQLiteStore) PendingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM memories
		WHERE embedding_status = ? AND created_at <= ?
		ORDER BY created_at ASC LIMIT ?
	`, string(memory.EmbeddingPending), olderThan.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: pending ids: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadVectors fetches the ready embeddings for a set of ids, skipping
// any that are not yet ready.
func (s *SQLiteStore) LoadVectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, embedding FROM memories
		WHERE id IN (%s) AND embedding_status = ? AND embedding IS NOT NULL
	`, strings.Join(placeholders, ","))
	args = append(args, string(memory.EmbeddingReady))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: load vectors: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]float32, len(ids))
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = deserializeVector(blob)
	}
	return out, rows.Err()
}

// FTSSearch runs a BM25-ranked full-text candidate search.
func (s *SQLiteStore) FTSSearch(ctx context.Context, query string, limit int) ([]TextHit, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, bm25(memories_fts) as score
		FROM memories_fts
		INNER JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY score LIMIT ?
	`, sanitized, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fts search: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var hits []TextHit
	for rows.Next() {
		var h TextHit
		if err := rows.Scan(&h.ID, &h.BM25); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DedupCandidates returns rows likely to overlap new content: those
// sharing its shingle hash, union'd with everything created since.
func (s *SQLiteStore) DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]dedup.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, updated_at FROM memories
		WHERE shingle_hash = ? OR created_at >= ?
		ORDER BY updated_at DESC LIMIT ?
	`, int64(shingleHash), since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: dedup candidates: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var out []dedup.Candidate
	for rows.Next() {
		var c dedup.Candidate
		var updatedAt int64
		if err := rows.Scan(&c.ID, &c.Content, &updatedAt); err != nil {
			return nil, err
		}
		c.UpdatedAt = fromMillis(updatedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats aggregates per-status and per-kind counts plus the database's
// on-disk size.
func (s *SQLiteStore) Stats(ctx context.Context) (memory.Stats, error) {
	var stats memory.Stats
	stats.ByKind = make(map[string]int)

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&stats.Total)
	if err != nil {
		return stats, fmt.Errorf("%w: count total: %v", memerr.ErrStore, err)
	}

	for status, dst := range map[string]*int{
		string(memory.EmbeddingPending): &stats.Pending,
		string(memory.EmbeddingReady):   &stats.Ready,
		string(memory.EmbeddingFailed):  &stats.Failed,
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE embedding_status = ?`, status).Scan(dst); err != nil {
			return stats, fmt.Errorf("%w: count %s: %v", memerr.ErrStore, status, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM memories GROUP BY kind`)
	if err != nil {
		return stats, fmt.Errorf("%w: count by kind: %v", memerr.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, err
		}
		stats.ByKind[kind] = n
	}

	var pageCount, pageSize int64
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats.StoreBytes = pageCount * pageSize

	return stats, nil
}

// Compact rebuilds the FTS index and reclaims free pages.
func (s *SQLiteStore) Compact(ctx context.Context) (int64, error) {
	var before int64
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&before)

	if _, err := s.db.ExecContext(ctx, `INSERT INTO memories_fts(memories_fts) VALUES('rebuild')`); err != nil {
		return 0, fmt.Errorf("%w: rebuild fts: %v", memerr.ErrStore, err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return 0, fmt.Errorf("%w: vacuum: %v", memerr.ErrStore, err)
	}

	var after, pageSize int64
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&after)
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	reclaimed := (before - after) * pageSize
	if reclaimed < 0 {
		reclaimed = 0
	}
	return reclaimed, nil
}

// ResetFailed resets every failed row back to pending so the worker
// picks it up again; ready rows are left untouched.
func (s *SQLiteStore) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET embedding_status = ?, updated_at = ? WHERE embedding_status = ?
	`, string(memory.EmbeddingPending), nowMillis(), string(memory.EmbeddingFailed))
	if err != nil {
		return 0, fmt.Errorf("%w: reset failed: %v", memerr.ErrStore, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanMemory(row *sql.Row) (*memory.Memory, error) {
	var m memory.Memory
	var scope, tagsJSON, embeddingStatus string
	var title, parentID, sessionKey sql.NullString
	var createdAt, updatedAt, shingleHash int64
	var embedding []byte
	var embeddingDim int

	err := row.Scan(
		&m.ID, &scope, &m.Kind, &title, &m.Content, &tagsJSON, &parentID,
		&m.ChunkIndex, &m.ChunkTotal, &shingleHash, &sessionKey,
		&createdAt, &updatedAt, &embedding, &embeddingDim, &embeddingStatus,
	)
	if err == sql.ErrNoRows {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan memory: %v", memerr.ErrStore, err)
	}
	populateMemory(&m, scope, tagsJSON, title, parentID, sessionKey, shingleHash, createdAt, updatedAt, embedding, embeddingDim, embeddingStatus)
	return &m, nil
}

func scanMemoryRows(rows *sql.Rows) (*memory.Memory, error) {
	var m memory.Memory
	var scope, tagsJSON, embeddingStatus string
	var title, parentID, sessionKey sql.NullString
	var createdAt, updatedAt, shingleHash int64
	var embedding []byte
	var embeddingDim int

	err := rows.Scan(
		&m.ID, &scope, &m.Kind, &title, &m.Content, &tagsJSON, &parentID,
		&m.ChunkIndex, &m.ChunkTotal, &shingleHash, &sessionKey,
		&createdAt, &updatedAt, &embedding, &embeddingDim, &embeddingStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan memory row: %v", memerr.ErrStore, err)
	}
	populateMemory(&m, scope, tagsJSON, title, parentID, sessionKey, shingleHash, createdAt, updatedAt, embedding, embeddingDim, embeddingStatus)
	return &m, nil
}

func populateMemory(m *memory.Memory, scope, tagsJSON string, title, parentID, sessionKey sql.NullString, shingleHash, createdAt, updatedAt int64, embedding []byte, embeddingDim int, embeddingStatus string) {
	m.Scope = memory.Scope(scope)
	m.Title = title.String
	m.ParentID = parentID.String
	m.SessionKey = sessionKey.String
	m.Tags = tagsFromJSON(tagsJSON)
	m.ShingleHash = uint64(shingleHash)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	m.EmbeddingDim = embeddingDim
	m.EmbeddingStatus = memory.EmbeddingStatus(embeddingStatus)
	if embedding != nil {
		m.Embedding = deserializeVector(embedding)
	}
}
