// Package worker runs the background embedding loop: it drains ids
// enqueued by the write pipeline, batches them per store, calls the
// embedder, and writes the resulting vectors back. It also periodically
// rescans every known store for memories stuck pending past a crash,
// since the in-memory queue does not survive a restart.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/mcp-memoria/internal/embedmodel"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

const (
	drainInterval  = 5 * time.Second
	drainBatchSize = 32
	orphanAge      = 60 * time.Second
	orphanCap      = 64
	queueWarnLen   = 10000
)

type workItem struct {
	store store.Store
	id    string
}

// Worker owns the single long-lived embedding consumer for the process.
type Worker struct {
	embedder embedmodel.Embedder
	router   *router.Router

	mu    sync.Mutex
	queue []workItem
	seen  map[workItem]struct{} // coalesces duplicate (store,id) enqueues

	wake    chan struct{} // poked by Enqueue so Run drains without waiting on the ticker
	stopped chan struct{}
}

// New creates a Worker. Call Run in its own goroutine to start
// processing; Enqueue is safe to call before Run starts.
func New(embedder embedmodel.Embedder, r *router.Router) *Worker {
	return &Worker{
		embedder: embedder,
		router:   r,
		seen:     make(map[workItem]struct{}),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Enqueue schedules ids in s for embedding. Duplicate (store,id) pairs
// already queued are coalesced.
func (w *Worker) Enqueue(s store.Store, ids ...string) {
	w.mu.Lock()
	added := false
	for _, id := range ids {
		item := workItem{store: s, id: id}
		if _, dup := w.seen[item]; dup {
			continue
		}
		w.seen[item] = struct{}{}
		w.queue = append(w.queue, item)
		added = true
	}
	backlog := len(w.queue)
	w.mu.Unlock()

	if backlog > queueWarnLen {
		log.Printf("[worker] queue backlog at %d items", backlog)
	}
	if added {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// Run drains the queue as soon as it's non-empty or the fixed tick fires,
// whichever comes first, until ctx is canceled; it finishes its current
// batch before returning so no in-flight write is lost.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			w.drainOnce(context.Background())
			return
		case <-ticker.C:
			w.drainOnce(ctx)
			w.scanOrphans(ctx)
		case <-w.wake:
			w.drainOnce(ctx)
		}
	}
}

// Done reports when Run has returned, for callers that want to wait out
// a graceful shutdown with a timeout.
func (w *Worker) Done() <-chan struct{} {
	return w.stopped
}

func (w *Worker) drainOnce(ctx context.Context) {
	batch := w.takeBatch()
	if len(batch) == 0 {
		return
	}
	w.processBatch(ctx, batch)

	// A batch caps at drainBatchSize; if the queue still has more, poke
	// wake again so Run doesn't wait out the full ticker for the rest.
	w.mu.Lock()
	remaining := len(w.queue) > 0
	w.mu.Unlock()
	if remaining {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) takeBatch() []workItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := drainBatchSize
	if n > len(w.queue) {
		n = len(w.queue)
	}
	batch := w.queue[:n]
	w.queue = w.queue[n:]
	for _, item := range batch {
		delete(w.seen, item)
	}
	return batch
}

func (w *Worker) processBatch(ctx context.Context, batch []workItem) {
	groups := make(map[store.Store][]string)
	order := make([]store.Store, 0)
	for _, item := range batch {
		if _, ok := groups[item.store]; !ok {
			order = append(order, item.store)
		}
		groups[item.store] = append(groups[item.store], item.id)
	}

	// Each store's group runs in its own goroutine, so one store's reads
	// and write-backs don't wait on another's; inference itself may still
	// be serialized inside the embedder.
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range order {
		s, ids := s, groups[s]
		g.Go(func() error {
			w.embedGroup(gctx, s, ids)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) embedGroup(ctx context.Context, s store.Store, ids []string) {
	contents := make([]string, 0, len(ids))
	validIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			log.Printf("[worker] load %s: %v", id, err)
			continue
		}
		contents = append(contents, m.Content)
		validIDs = append(validIDs, id)
	}
	if len(validIDs) == 0 {
		return
	}

	vectors, err := w.embedder.Embed(ctx, contents)
	if err != nil {
		log.Printf("[worker] embed batch of %d failed: %v", len(validIDs), err)
		for _, id := range validIDs {
			if mErr := s.MarkFailed(ctx, id, err.Error()); mErr != nil {
				log.Printf("[worker] mark failed %s: %v", id, mErr)
			}
		}
		return
	}

	for i, id := range validIDs {
		if err := s.UpdateEmbedding(ctx, id, vectors[i]); err != nil {
			log.Printf("[worker] update embedding %s: %v", id, err)
		}
	}
}

// scanOrphans rediscovers pending rows left behind by a crash between
// insert and the in-memory enqueue (or a process restart), across every
// store the router has opened so far.
func (w *Worker) scanOrphans(ctx context.Context) {
	cutoff := time.Now().Add(-orphanAge)
	for _, s := range w.router.All() {
		ids, err := s.PendingIDs(ctx, cutoff, orphanCap)
		if err != nil {
			log.Printf("[worker] orphan scan: %v", err)
			continue
		}
		if len(ids) > 0 {
			w.Enqueue(s, ids...)
		}
	}
}
