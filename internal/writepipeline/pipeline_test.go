package writepipeline

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mcp-memoria/internal/chunker"
	"github.com/dshills/mcp-memoria/internal/dedup"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/store"
)

type fakeEnqueuer struct {
	calls []string
}

func (f *fakeEnqueuer) Enqueue(s store.Store, ids ...string) {
	f.calls = append(f.calls, ids...)
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEnqueuer) {
	t.Helper()
	r := router.New(t.TempDir(), func(path string) (store.Store, error) {
		return store.Open(":memory:")
	})
	enq := &fakeEnqueuer{}
	counter := 0
	newID := func() string {
		counter++
		return "id-" + strconv.Itoa(counter)
	}
	p := New(r, chunker.New(), dedup.New(), enq, newID)
	return p, enq
}

func TestSave_ShortContentSavesOneChunk(t *testing.T) {
	p, enq := newTestPipeline(t)

	result, err := p.Save(context.Background(), SaveRequest{
		Scope:   memory.ScopeGlobal,
		Content: "a short memory",
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Saved)
	assert.Len(t, enq.calls, 1)
}

func TestSave_RejectsEmptyContent(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Save(context.Background(), SaveRequest{Scope: memory.ScopeGlobal, Content: ""})
	assert.Error(t, err)
}

func TestSave_RejectsUnknownScope(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Save(context.Background(), SaveRequest{Scope: memory.Scope("bogus"), Content: "x"})
	assert.Error(t, err)
}

func TestSave_SkipsNearDuplicateChunk(t *testing.T) {
	p, enq := newTestPipeline(t)
	ctx := context.Background()

	text := "the quick brown fox jumps over the lazy dog repeatedly"
	_, err := p.Save(ctx, SaveRequest{Scope: memory.ScopeProject, Content: text})
	require.NoError(t, err)
	require.Len(t, enq.calls, 1)

	result, err := p.Save(ctx, SaveRequest{Scope: memory.ScopeProject, Content: text + " today"})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].Saved)
	assert.NotEmpty(t, result.Outcomes[0].DuplicateOf)
	assert.Len(t, enq.calls, 1) // no new enqueue for the skipped duplicate
}

func TestSave_SessionKeyUpsertsSingleRow(t *testing.T) {
	p, enq := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.Save(ctx, SaveRequest{
		Scope:      memory.ScopeProject,
		Content:    "turn one",
		SessionKey: "session-a",
	})
	require.NoError(t, err)

	second, err := p.Save(ctx, SaveRequest{
		Scope:      memory.ScopeProject,
		Content:    "turn one and turn two",
		SessionKey: "session-a",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ParentID, second.ParentID)
	assert.Len(t, enq.calls, 2)
}
