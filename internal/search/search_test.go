package search

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/embedmodel"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

type fakeStore struct {
	hits    []store.TextHit
	rows    map[string]*memory.Memory
	vectors map[string][]float32
}

func (s *fakeStore) InsertBatch(ctx context.Context, ms []*memory.Memory) error { return nil }
func (s *fakeStore) Insert(ctx context.Context, m *memory.Memory) error         { return nil }
func (s *fakeStore) UpsertBySessionKey(ctx context.Context, m *memory.Memory) (string, bool, error) {
	return "", false, nil
}
func (s *fakeStore) Get(ctx context.Context, id string) (*memory.Memory, error) {
	return s.rows[id], nil
}
func (s *fakeStore) Delete(ctx context.Context, id string) error { return nil }
func (s *fakeStore) List(ctx context.Context, f memory.Filters, limit, offset int) ([]memory.Memory, error) {
	rows := make([]memory.Memory, 0, len(s.rows))
	for _, m := range s.rows {
		rows = append(rows, *m)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdatedAt.After(rows[j].UpdatedAt) })
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}
func (s *fakeStore) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	return nil
}
func (s *fakeStore) MarkFailed(ctx context.Context, id string, reason string) error { return nil }
func (s *fakeStore) PendingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) LoadVectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	return s.vectors, nil
}
func (s *fakeStore) FTSSearch(ctx context.Context, query string, limit int) ([]store.TextHit, error) {
	return s.hits, nil
}
func (s *fakeStore) DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]dedup.Candidate, error) {
	return nil, nil
}
func (s *fakeStore) Stats(ctx context.Context) (memory.Stats, error) { return memory.Stats{}, nil }
func (s *fakeStore) Compact(ctx context.Context) (int64, error)      { return 0, nil }
func (s *fakeStore) ResetFailed(ctx context.Context) (int, error)    { return 0, nil }
func (s *fakeStore) Close() error                                    { return nil }

type fakeEmbedder struct{ vec []float32 }

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}
func (e *fakeEmbedder) Dimension() int { return len(e.vec) }
func (e *fakeEmbedder) Close() error   { return nil }

func newTestEngine(t *testing.T, s *fakeStore, embedder *fakeEmbedder) *Engine {
	t.Helper()
	r := router.New(t.TempDir(), func(path string) (store.Store, error) { return s, nil })
	var e embedmodel.Embedder
	if embedder != nil {
		e = embedder
	}
	return New(r, e)
}

func TestSearch_RanksExactVectorMatchHighest(t *testing.T) {
	now := time.Now()
	s := &fakeStore{
		hits: []store.TextHit{{ID: "a", BM25: -5}, {ID: "b", BM25: -1}},
		rows: map[string]*memory.Memory{
			"a": {ID: "a", Content: "alpha", UpdatedAt: now},
			"b": {ID: "b", Content: "beta", UpdatedAt: now},
		},
		vectors: map[string][]float32{
			"a": {1, 0},
			"b": {0, 1},
		},
	}
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	e := newTestEngine(t, s, embedder)

	results, err := e.Search(context.Background(), Request{Query: "alpha", Scopes: []memory.Scope{memory.ScopeGlobal}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Memory.ID)
}

func TestSearch_DegradesToLexicalWithoutEmbedder(t *testing.T) {
	now := time.Now()
	s := &fakeStore{
		hits: []store.TextHit{{ID: "a", BM25: -5}},
		rows: map[string]*memory.Memory{"a": {ID: "a", Content: "alpha", UpdatedAt: now}},
	}
	e := newTestEngine(t, s, nil)

	results, err := e.Search(context.Background(), Request{Query: "alpha", Scopes: []memory.Scope{memory.ScopeGlobal}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Dense)
}

func TestSearch_FiltersByKind(t *testing.T) {
	now := time.Now()
	s := &fakeStore{
		hits: []store.TextHit{{ID: "a", BM25: -1}, {ID: "b", BM25: -2}},
		rows: map[string]*memory.Memory{
			"a": {ID: "a", Kind: "note", Content: "alpha", UpdatedAt: now},
			"b": {ID: "b", Kind: "decision", Content: "beta", UpdatedAt: now},
		},
	}
	e := newTestEngine(t, s, nil)

	results, err := e.Search(context.Background(), Request{
		Query:   "x",
		Scopes:  []memory.Scope{memory.ScopeGlobal},
		Limit:   10,
		Filters: memory.Filters{Kind: "note"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Memory.ID)
}

func TestSearch_EmptyQueryFallsBackToRecency(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	s := &fakeStore{
		rows: map[string]*memory.Memory{
			"old": {ID: "old", Content: "alpha", UpdatedAt: older},
			"new": {ID: "new", Content: "beta", UpdatedAt: newer},
		},
	}
	e := newTestEngine(t, s, nil)

	results, err := e.Search(context.Background(), Request{Query: "  ", Scopes: []memory.Scope{memory.ScopeGlobal}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "new", results[0].Memory.ID)
}

func TestSearchPerScope_KeepsEachScopesOwnTopK(t *testing.T) {
	now := time.Now()
	strongGlobal := &fakeStore{
		hits: []store.TextHit{{ID: "g1", BM25: -5}},
		rows: map[string]*memory.Memory{"g1": {ID: "g1", Content: "alpha", UpdatedAt: now}},
	}
	weakProject := &fakeStore{
		hits: []store.TextHit{{ID: "p1", BM25: -1}},
		rows: map[string]*memory.Memory{"p1": {ID: "p1", Content: "alpha weak", UpdatedAt: now}},
	}

	r := router.New(t.TempDir(), func(path string) (store.Store, error) {
		if filepath.Base(path) == "global.db" {
			return strongGlobal, nil
		}
		return weakProject, nil
	})
	e := New(r, nil)

	out, err := e.SearchPerScope(context.Background(), Request{
		Query:  "alpha",
		Scopes: []memory.Scope{memory.ScopeGlobal, memory.ScopeProject},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, out[memory.ScopeGlobal], 1)
	require.Len(t, out[memory.ScopeProject], 1)
	assert.Equal(t, "g1", out[memory.ScopeGlobal][0].Memory.ID)
	assert.Equal(t, "p1", out[memory.ScopeProject][0].Memory.ID)
}

func TestRecencyBoost_DecaysWithAge(t *testing.T) {
	fresh := recencyBoost(time.Now())
	old := recencyBoost(time.Now().Add(-90 * 24 * time.Hour))
	assert.Greater(t, fresh, old)
	assert.GreaterOrEqual(t, old, decayFloor)
}
