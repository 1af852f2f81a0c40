// Package store implements one scope's persistent backing store: an
// embedded SQLite database holding the memories table, its FTS5 shadow
// index, and the vector blobs used for dense rescoring.
package store

import (
	"context"
	"time"

	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/memory"
)

// TextHit is one row returned by a full-text candidate search, carrying
// the engine's raw BM25 score (more negative is more relevant, per
// SQLite FTS5 convention, until normalized by the search layer).
type TextHit struct {
	ID   string
	BM25 float64
}

// Store is the persistence contract one scope's database satisfies. It
// is deliberately free of scope-awareness: the router decides which
// Store backs which request.
type Store interface {
	// InsertBatch inserts all of one parent memory's sibling chunks in a
	// single transaction, so a multi-chunk save is all-or-nothing.
	InsertBatch(ctx context.Context, ms []*memory.Memory) error
	Insert(ctx context.Context, m *memory.Memory) error
	UpsertBySessionKey(ctx context.Context, m *memory.Memory) (id string, updated bool, err error)
	Get(ctx context.Context, id string) (*memory.Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f memory.Filters, limit, offset int) ([]memory.Memory, error)

	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
	MarkFailed(ctx context.Context, id string, reason string) error
	PendingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	LoadVectors(ctx context.Context, ids []string) (map[string][]float32, error)

	FTSSearch(ctx context.Context, query string, limit int) ([]TextHit, error)
	DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]dedup.Candidate, error)

	Stats(ctx context.Context) (memory.Stats, error)
	Compact(ctx context.Context) (reclaimedBytes int64, err error)
	ResetFailed(ctx context.Context) (reset int, err error)

	Close() error
}
