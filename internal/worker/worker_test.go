package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	rows     map[string]*memory.Memory
	failures map[string]string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*memory.Memory), failures: make(map[string]string)}
}

func (s *memStore) put(m *memory.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = m
}

func (s *memStore) InsertBatch(ctx context.Context, ms []*memory.Memory) error {
	for _, m := range ms {
		s.put(m)
	}
	return nil
}
func (s *memStore) Insert(ctx context.Context, m *memory.Memory) error { s.put(m); return nil }
func (s *memStore) UpsertBySessionKey(ctx context.Context, m *memory.Memory) (string, bool, error) {
	s.put(m)
	return m.ID, false, nil
}
func (s *memStore) Get(ctx context.Context, id string) (*memory.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id], nil
}
func (s *memStore) Delete(ctx context.Context, id string) error { return nil }
func (s *memStore) List(ctx context.Context, f memory.Filters, limit, offset int) ([]memory.Memory, error) {
	return nil, nil
}
func (s *memStore) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.rows[id]; ok {
		m.Embedding = vector
		m.EmbeddingStatus = memory.EmbeddingReady
	}
	return nil
}
func (s *memStore) MarkFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = reason
	if m, ok := s.rows[id]; ok {
		m.EmbeddingStatus = memory.EmbeddingFailed
	}
	return nil
}
func (s *memStore) PendingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	return nil, nil
}
func (s *memStore) LoadVectors(ctx context.Context, ids []string) (map[string][]float32, error) {
	return nil, nil
}
func (s *memStore) FTSSearch(ctx context.Context, query string, limit int) ([]store.TextHit, error) {
	return nil, nil
}
func (s *memStore) DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]dedup.Candidate, error) {
	return nil, nil
}
func (s *memStore) Stats(ctx context.Context) (memory.Stats, error) { return memory.Stats{}, nil }
func (s *memStore) Compact(ctx context.Context) (int64, error)     { return 0, nil }
func (s *memStore) ResetFailed(ctx context.Context) (int, error)   { return 0, nil }
func (s *memStore) Close() error                                   { return nil }

type fakeEmbedder struct {
	fail bool
	dim  int
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, assert.AnError
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}
func (e *fakeEmbedder) Dimension() int { return e.dim }
func (e *fakeEmbedder) Close() error   { return nil }

func TestEnqueue_CoalescesDuplicates(t *testing.T) {
	w := New(&fakeEmbedder{dim: 4}, router.New(t.TempDir(), nil))
	s := newMemStore()
	w.Enqueue(s, "a", "a", "b")
	assert.Len(t, w.queue, 2)
}

func TestDrainOnce_EmbedsQueuedItems(t *testing.T) {
	w := New(&fakeEmbedder{dim: 4}, router.New(t.TempDir(), nil))
	s := newMemStore()
	s.put(&memory.Memory{ID: "m1", Content: "hello world"})
	w.Enqueue(s, "m1")

	w.drainOnce(context.Background())

	got, err := s.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, memory.EmbeddingReady, got.EmbeddingStatus)
	assert.Len(t, got.Embedding, 4)
}

func TestDrainOnce_MarksFailedOnEmbedError(t *testing.T) {
	w := New(&fakeEmbedder{fail: true, dim: 4}, router.New(t.TempDir(), nil))
	s := newMemStore()
	s.put(&memory.Memory{ID: "m1", Content: "hello world"})
	w.Enqueue(s, "m1")

	w.drainOnce(context.Background())

	got, err := s.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, memory.EmbeddingFailed, got.EmbeddingStatus)
	assert.Equal(t, assert.AnError.Error(), s.failures["m1"])
}

func TestDrainOnce_EmptyQueueIsNoop(t *testing.T) {
	w := New(&fakeEmbedder{dim: 4}, router.New(t.TempDir(), nil))
	w.drainOnce(context.Background())
}

func TestRun_DrainsOnEnqueueWithoutWaitingForTicker(t *testing.T) {
	w := New(&fakeEmbedder{dim: 4}, router.New(t.TempDir(), nil))
	s := newMemStore()
	s.put(&memory.Memory{ID: "m1", Content: "hello world"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(s, "m1")

	require.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), "m1")
		return err == nil && got.EmbeddingStatus == memory.EmbeddingReady
	}, drainInterval/2, 5*time.Millisecond, "expected drain well before the 5s ticker fires")

	cancel()
	<-w.Done()
}
