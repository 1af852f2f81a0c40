package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/store"
)

type fakeStore struct {
	store.Store
	path   string
	closed bool
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func newFakeOpener() (Opener, *[]string) {
	var opened []string
	return func(path string) (store.Store, error) {
		opened = append(opened, path)
		return &fakeStore{path: path}, nil
	}, &opened
}

func TestResolve_OpensOncePerPath(t *testing.T) {
	open, opened := newFakeOpener()
	r := New(t.TempDir(), open)

	s1, err := r.Resolve(memory.ScopeGlobal, "")
	require.NoError(t, err)
	s2, err := r.Resolve(memory.ScopeGlobal, "")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Len(t, *opened, 1)
}

func TestResolve_DistinctScopesUseDistinctFiles(t *testing.T) {
	open, opened := newFakeOpener()
	r := New(t.TempDir(), open)

	_, err := r.Resolve(memory.ScopeGlobal, "")
	require.NoError(t, err)
	_, err = r.Resolve(memory.ScopePersonality, "")
	require.NoError(t, err)

	assert.Len(t, *opened, 2)
	assert.NotEqual(t, (*opened)[0], (*opened)[1])
}

func TestResolve_UnknownScopeErrors(t *testing.T) {
	open, _ := newFakeOpener()
	r := New(t.TempDir(), open)
	_, err := r.Resolve(memory.Scope("bogus"), "")
	assert.Error(t, err)
}

func TestProjectRoot_FindsMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, found := ProjectRoot(nested)
	assert.True(t, found)
	assert.Equal(t, root, got)
}

func TestProjectRoot_NoMarkerReportsNotFound(t *testing.T) {
	root := t.TempDir()
	_, found := ProjectRoot(root)
	assert.False(t, found)
}

func TestCloseAll_ClosesEveryHandle(t *testing.T) {
	open, _ := newFakeOpener()
	r := New(t.TempDir(), open)

	_, err := r.Resolve(memory.ScopeGlobal, "")
	require.NoError(t, err)
	_, err = r.Resolve(memory.ScopePersonality, "")
	require.NoError(t, err)

	require.NoError(t, r.CloseAll())

	for _, s := range r.All() {
		assert.True(t, s.(*fakeStore).closed)
	}
}
