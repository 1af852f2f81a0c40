// Package writepipeline implements the save path: chunk incoming text,
// check each chunk for duplicates against its target store, persist the
// survivors, and hand their ids to the background embedding worker.
package writepipeline

import (
	"context"
	"fmt"

	"github.com/dshills/mcp-memoria/internal/chunker"
	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/memerr"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

// IDGenerator mints a stable identifier for a new memory or chunk
// parent. Production code wires this to a UUID generator.
type IDGenerator func() string

// Enqueuer hands newly written ids to the background worker.
type Enqueuer interface {
	Enqueue(s store.Store, ids ...string)
}

// Pipeline is the save-path orchestrator.
type Pipeline struct {
	router  *router.Router
	chunker *chunker.Chunker
	dedup   *dedup.Checker
	worker  Enqueuer
	newID   IDGenerator
}

// New creates a Pipeline. newID must return a fresh unique id on every
// call.
func New(r *router.Router, c *chunker.Chunker, d *dedup.Checker, w Enqueuer, newID IDGenerator) *Pipeline {
	return &Pipeline{router: r, chunker: c, dedup: d, worker: w, newID: newID}
}

// SaveRequest is one memory_save call's parameters.
type SaveRequest struct {
	Scope      memory.Scope
	Kind       string
	Title      string
	Content    string
	Tags       []string
	SessionKey string
	Cwd        string
}

// ChunkOutcome reports what happened to one chunk of a save.
type ChunkOutcome struct {
	ChunkIndex  int
	Saved       bool
	DuplicateOf string
}

// SaveResult is memory_save's response.
type SaveResult struct {
	ParentID string
	Outcomes []ChunkOutcome
}

// Save chunks req.Content, dedups each chunk against the target store,
// persists the survivors in one transaction, and enqueues them for
// embedding.
func (p *Pipeline) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", memerr.ErrInvalidInput)
	}
	if !req.Scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", memerr.ErrInvalidInput, req.Scope)
	}

	s, err := p.router.Resolve(req.Scope, req.Cwd)
	if err != nil {
		return nil, err
	}

	// The conversation-capture path: a session key always resolves to
	// exactly one row via UPSERT, bypassing chunking and dedup.
	if req.SessionKey != "" {
		id := p.newID()
		shingles := chunker.Shingles(req.Content)
		m := &memory.Memory{
			ID:          id,
			Scope:       req.Scope,
			Kind:        req.Kind,
			Title:       req.Title,
			Content:     req.Content,
			Tags:        req.Tags,
			ChunkIndex:  1,
			ChunkTotal:  1,
			ShingleHash: chunker.ShingleHash(shingles),
			SessionKey:  req.SessionKey,
		}
		resolvedID, _, err := s.UpsertBySessionKey(ctx, m)
		if err != nil {
			return nil, err
		}
		p.worker.Enqueue(s, resolvedID)
		return &SaveResult{
			ParentID: resolvedID,
			Outcomes: []ChunkOutcome{{ChunkIndex: 1, Saved: true}},
		}, nil
	}

	chunks := p.chunker.Split(req.Content)
	parentID := p.newID()

	var toInsert []*memory.Memory
	outcomes := make([]ChunkOutcome, 0, len(chunks))

	for _, c := range chunks {
		dupID, isDup, err := p.dedup.Check(ctx, s, c.Text)
		if err != nil {
			return nil, err
		}
		if isDup {
			outcomes = append(outcomes, ChunkOutcome{ChunkIndex: c.Index, Saved: false, DuplicateOf: dupID})
			continue
		}

		shingles := chunker.Shingles(c.Text)
		m := &memory.Memory{
			ID:          p.newID(),
			Scope:       req.Scope,
			Kind:        req.Kind,
			Title:       req.Title,
			Content:     c.Text,
			Tags:        req.Tags,
			ParentID:    parentID,
			ChunkIndex:  c.Index,
			ChunkTotal:  c.Total,
			ShingleHash: chunker.ShingleHash(shingles),
		}
		toInsert = append(toInsert, m)
		outcomes = append(outcomes, ChunkOutcome{ChunkIndex: c.Index, Saved: true})
	}

	if len(toInsert) > 0 {
		if err := s.InsertBatch(ctx, toInsert); err != nil {
			return nil, err
		}
		ids := make([]string, len(toInsert))
		for i, m := range toInsert {
			ids[i] = m.ID
		}
		p.worker.Enqueue(s, ids...)
	}

	return &SaveResult{ParentID: parentID, Outcomes: outcomes}, nil
}
