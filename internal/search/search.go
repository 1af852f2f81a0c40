// Package search implements hybrid retrieval: a full-text candidate
// sweep rescored against dense embeddings, fused with a recency boost.
// It mirrors the concurrent dual-search shape of a classic vector+BM25
// engine, but the fusion math is its own: a weighted blend of the two
// normalized scores rather than reciprocal-rank fusion, because the
// decay term needs access to each candidate's raw score, not its rank.
package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/mcp-memoria/internal/embedmodel"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

const (
	denseWeight    = 0.7
	lexicalWeight  = 0.3
	decayHalfScale = 30.0 // days
	decayFloor     = 0.85
	decayRange     = 0.15
	candidateLimit = 50
	cacheSize      = 256
	cacheTTL       = 2 * time.Minute
)

// Request is one search call's parameters.
type Request struct {
	Query    string
	Scopes   []memory.Scope
	Cwd      string
	Limit    int
	Filters  memory.Filters
	UseCache bool
}

// Engine runs hybrid search across the stores a Router resolves.
type Engine struct {
	router   *router.Router
	embedder embedmodel.Embedder

	cacheMu sync.Mutex
	cache   *lru.Cache[[32]byte, cacheEntry]
}

type cacheEntry struct {
	results   []memory.SearchResult
	expiresAt time.Time
}

// New creates an Engine. embedder may be nil or perpetually failing
// (the stub build); Search degrades to lexical-only scoring in that
// case rather than erroring.
func New(r *router.Router, embedder embedmodel.Embedder) *Engine {
	cache, err := lru.New[[32]byte, cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("search: create query cache: %v", err))
	}
	return &Engine{router: r, embedder: embedder, cache: cache}
}

// Search runs hybrid retrieval across req.Scopes and returns the top
// req.Limit results ordered by fused score. An empty query falls back to
// the most recently updated rows across req.Scopes rather than erroring.
func (e *Engine) Search(ctx context.Context, req Request) ([]memory.SearchResult, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []memory.Scope{memory.ScopeProject}
	}

	if strings.TrimSpace(req.Query) == "" {
		return e.searchRecent(ctx, req)
	}

	if req.UseCache {
		if cached, ok := e.fromCache(req); ok {
			return truncate(cached, req.Limit), nil
		}
	}

	queryVec, embedErr := e.embedQuery(ctx, req.Query)

	var mu sync.Mutex
	var all []memory.SearchResult
	var firstErr error

	var wg sync.WaitGroup
	for _, scope := range req.Scopes {
		scope := scope
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.searchScope(ctx, scope, req, queryVec, embedErr)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			all = append(all, results...)
		}()
	}
	wg.Wait()

	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		if !all[i].Memory.UpdatedAt.Equal(all[j].Memory.UpdatedAt) {
			return all[i].Memory.UpdatedAt.After(all[j].Memory.UpdatedAt)
		}
		return all[i].Memory.ID < all[j].Memory.ID
	})

	if req.UseCache {
		e.toCache(req, all)
	}

	return truncate(all, req.Limit), nil
}

// searchRecent serves the empty-query edge case: the most recently
// updated rows across req.Scopes, honoring req.Filters but skipping
// dense/lexical scoring entirely.
func (e *Engine) searchRecent(ctx context.Context, req Request) ([]memory.SearchResult, error) {
	var mu sync.Mutex
	var all []memory.SearchResult
	var firstErr error

	var wg sync.WaitGroup
	for _, scope := range req.Scopes {
		scope := scope
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.router.Resolve(scope, req.Cwd)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			// Fetch a pool wider than req.Limit: List orders by created_at,
			// but the final merge sorts by updated_at, so a recently
			// touched-but-old row must not be cut before that re-sort.
			rows, err := s.List(ctx, req.Filters, candidateLimit, 0)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for i := range rows {
				boost := recencyBoost(rows[i].UpdatedAt)
				all = append(all, memory.SearchResult{Memory: rows[i], Score: boost, Decay: boost})
			}
		}()
	}
	wg.Wait()

	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Memory.UpdatedAt.After(all[j].Memory.UpdatedAt)
	})
	return truncate(all, req.Limit), nil
}

// SearchPerScope runs Search independently within each of req.Scopes and
// returns each scope's own top-K results, so a scope with weaker raw
// scores can't be crowded out by a globally merged ranking.
func (e *Engine) SearchPerScope(ctx context.Context, req Request) (map[memory.Scope][]memory.SearchResult, error) {
	if len(req.Scopes) == 0 {
		req.Scopes = []memory.Scope{memory.ScopeGlobal, memory.ScopePersonality, memory.ScopeProject}
	}

	out := make(map[memory.Scope][]memory.SearchResult, len(req.Scopes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, scope := range req.Scopes {
		scope := scope
		wg.Add(1)
		go func() {
			defer wg.Done()
			single := req
			single.Scopes = []memory.Scope{scope}
			results, err := e.Search(ctx, single)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[scope] = results
		}()
	}
	wg.Wait()

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, embedmodel.ErrRuntime
	}
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, embedmodel.ErrRuntime
	}
	return vecs[0], nil
}

// scopeFetch carries one scope's FTS candidate hits back from the
// goroutine that runs the full-text query; ready vectors are loaded
// afterwards, once the candidate ids are known.
type scopeFetch struct {
	textHits []store.TextHit
	vectors  map[string][]float32
	err      error
}

func (e *Engine) searchScope(ctx context.Context, scope memory.Scope, req Request, queryVec []float32, embedErr error) ([]memory.SearchResult, error) {
	s, err := e.router.Resolve(scope, req.Cwd)
	if err != nil {
		return nil, err
	}

	// candidateLimit is a fixed pool size, independent of the caller's
	// result limit, so a small limit doesn't starve recall.
	textChan := make(chan scopeFetch, 1)
	go func() {
		hits, ferr := s.FTSSearch(ctx, req.Query, candidateLimit)
		textChan <- scopeFetch{textHits: hits, err: ferr}
	}()

	var fetch scopeFetch
	select {
	case fetch = <-textChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fetch.err != nil {
		return nil, fetch.err
	}

	ids := make([]string, len(fetch.textHits))
	bm25ByID := make(map[string]float64, len(fetch.textHits))
	for i, hit := range fetch.textHits {
		ids[i] = hit.ID
		bm25ByID[hit.ID] = hit.BM25
	}

	var vectors map[string][]float32
	if embedErr == nil && len(ids) > 0 {
		vectors, err = s.LoadVectors(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	lexicalNorm := normalizeBM25(bm25ByID)

	results := make([]memory.SearchResult, 0, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if !matchesFilters(m, req.Filters) {
			continue
		}

		dense := 0.0
		if vec, ok := vectors[id]; ok && queryVec != nil {
			dense = clampCosine(cosine(queryVec, vec))
		}
		lexical := lexicalNorm[id]
		boost := recencyBoost(m.UpdatedAt)
		score := (denseWeight*dense + lexicalWeight*lexical) * boost

		results = append(results, memory.SearchResult{
			Memory:  *m,
			Score:   score,
			Dense:   dense,
			Lexical: lexical,
			Decay:   boost,
		})
	}

	return results, nil
}

// normalizeBM25 min-max normalizes raw FTS5 bm25() values (more
// negative is better) into [0,1] within one candidate set, where 1 is
// the best match in that set.
func normalizeBM25(byID map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(byID))
	if len(byID) == 0 {
		return out
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range byID {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	spread := max - min
	for id, v := range byID {
		if spread == 0 {
			// Every candidate ties on bm25 (e.g. a single hit): lexical
			// contributes nothing, leaving dense+decay to decide.
			out[id] = 0
			continue
		}
		// Invert: the lowest raw bm25 (best match) maps to 1.
		out[id] = (max - v) / spread
	}
	return out
}

func clampCosine(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func recencyBoost(updatedAt time.Time) float64 {
	ageDays := time.Since(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return decayFloor + decayRange*math.Exp(-ageDays/decayHalfScale)
}

func matchesFilters(m *memory.Memory, f memory.Filters) bool {
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && m.UpdatedAt.Before(f.Since) {
		return false
	}
	if len(f.Tags) > 0 {
		want := make(map[string]struct{}, len(f.Tags))
		for _, t := range f.Tags {
			want[t] = struct{}{}
		}
		found := false
		for _, t := range m.Tags {
			if _, ok := want[t]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func truncate(results []memory.SearchResult, limit int) []memory.SearchResult {
	if limit >= 0 && limit < len(results) {
		return results[:limit]
	}
	return results
}

func (e *Engine) fromCache(req Request) ([]memory.SearchResult, bool) {
	key := cacheKey(req)
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	entry, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		e.cache.Remove(key)
		return nil, false
	}
	return entry.results, true
}

func (e *Engine) toCache(req Request, results []memory.SearchResult) {
	key := cacheKey(req)
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache.Add(key, cacheEntry{results: results, expiresAt: time.Now().Add(cacheTTL)})
}

func cacheKey(req Request) [32]byte {
	var b strings.Builder
	b.WriteString(req.Query)
	b.WriteString("|")
	b.WriteString(req.Cwd)
	b.WriteString("|")
	for _, s := range req.Scopes {
		b.WriteString(string(s))
		b.WriteString(",")
	}
	b.WriteString("|")
	b.WriteString(req.Filters.Kind)
	b.WriteString("|")
	b.WriteString(strings.Join(req.Filters.Tags, ","))
	b.WriteString("|")
	fmt.Fprintf(&b, "%d", req.Filters.Since.Unix())
	return sha256.Sum256([]byte(b.String()))
}
