// Package dedup decides whether newly written content duplicates an
// existing memory in the same store, using a shingle-hash pre-filter
// followed by a Jaccard refine over the candidate set.
package dedup

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/mcp-memoria/internal/chunker"
)

// Threshold is the minimum Jaccard similarity for two memories to be
// considered duplicates.
const Threshold = 0.85

// CandidateWindow bounds how far back a dedup scan looks when no
// shingle-hash match is found.
const CandidateWindow = 30 * 24 * time.Hour

// MaxCandidates caps how many recent rows a dedup scan considers.
const MaxCandidates = 200

// Candidate is one row a new memory is compared against.
type Candidate struct {
	ID        string
	Content   string
	UpdatedAt time.Time
}

// CandidateSource is implemented by a scope's store: it returns the rows
// a dedup check should compare the new content against.
type CandidateSource interface {
	DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]Candidate, error)
}

// Checker finds duplicate memories within one store.
type Checker struct {
	shingleCache *lru.Cache[string, map[string]struct{}]
}

// New creates a Checker with a bounded shingle-set cache shared across
// dedup calls for the process lifetime.
func New() *Checker {
	cache, _ := lru.New[string, map[string]struct{}](512)
	return &Checker{shingleCache: cache}
}

// Check reports the id of the most similar existing memory if its
// Jaccard similarity to content meets Threshold, or ok=false otherwise.
func (c *Checker) Check(ctx context.Context, src CandidateSource, content string) (duplicateOf string, ok bool, err error) {
	shingles := chunker.Shingles(content)
	hash := chunker.ShingleHash(shingles)

	candidates, err := src.DedupCandidates(ctx, hash, time.Now().Add(-CandidateWindow), MaxCandidates)
	if err != nil {
		return "", false, err
	}

	var bestID string
	var bestScore float64
	var bestUpdated time.Time
	for _, cand := range candidates {
		candShingles, cached := c.shingleCache.Get(cand.ID)
		if !cached {
			candShingles = chunker.Shingles(cand.Content)
			c.shingleCache.Add(cand.ID, candShingles)
		}
		score := chunker.Jaccard(shingles, candShingles)
		if score > bestScore || (score == bestScore && cand.UpdatedAt.After(bestUpdated)) {
			bestScore = score
			bestID = cand.ID
			bestUpdated = cand.UpdatedAt
		}
	}

	if bestScore >= Threshold {
		return bestID, true, nil
	}
	return "", false, nil
}

// Forget evicts a memory's cached shingle set, called after the row is
// deleted so a later dedup check cannot match against stale content.
func (c *Checker) Forget(id string) {
	c.shingleCache.Remove(id)
}
