package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	candidates []Candidate
}

func (f *fakeSource) DedupCandidates(ctx context.Context, shingleHash uint64, since time.Time, limit int) ([]Candidate, error) {
	return f.candidates, nil
}

func TestCheck_NoCandidatesIsNotDuplicate(t *testing.T) {
	c := New()
	src := &fakeSource{}
	dup, ok, err := c.Check(context.Background(), src, "fresh content here")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, dup)
}

func TestCheck_NearIdenticalContentIsDuplicate(t *testing.T) {
	c := New()
	src := &fakeSource{candidates: []Candidate{
		{ID: "existing", Content: "the quick brown fox jumps over the lazy dog", UpdatedAt: time.Now()},
	}}

	dup, ok, err := c.Check(context.Background(), src, "the quick brown fox jumps over the lazy dog today")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "existing", dup)
}

func TestCheck_UnrelatedContentIsNotDuplicate(t *testing.T) {
	c := New()
	src := &fakeSource{candidates: []Candidate{
		{ID: "existing", Content: "the quick brown fox jumps over the lazy dog", UpdatedAt: time.Now()},
	}}

	dup, ok, err := c.Check(context.Background(), src, "completely unrelated sentence about spacecraft engines")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, dup)
}

func TestCheck_PrefersMostRecentOnTie(t *testing.T) {
	c := New()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	src := &fakeSource{candidates: []Candidate{
		{ID: "old", Content: "identical text here", UpdatedAt: older},
		{ID: "new", Content: "identical text here", UpdatedAt: newer},
	}}

	dup, ok, err := c.Check(context.Background(), src, "identical text here")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", dup)
}

func TestForget_EvictsCachedShingles(t *testing.T) {
	c := New()
	src := &fakeSource{candidates: []Candidate{
		{ID: "existing", Content: "some content to cache", UpdatedAt: time.Now()},
	}}
	_, _, err := c.Check(context.Background(), src, "some content to cache now")
	require.NoError(t, err)

	c.Forget("existing")
	_, cached := c.shingleCache.Get("existing")
	assert.False(t, cached)
}
