// Package router resolves a (scope, working directory) pair to the
// Store backing it, opening database files lazily and caching the
// resulting handle for the process lifetime.
package router

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dshills/mcp-memoria/internal/memerr"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/store"
)

// projectMarkers are the files/directories that identify a project root
// when walking up from the working directory.
var projectMarkers = []string{".git", "go.mod", "package.json", "Cargo.toml", "pyproject.toml"}

// Opener constructs a Store for a database file path; production code
// passes store.Open, tests substitute an in-memory opener.
type Opener func(path string) (store.Store, error)

// Router caches open Store handles keyed by absolute database path.
type Router struct {
	dataRoot string
	open     Opener

	mu      sync.Mutex
	handles map[string]store.Store
}

// New creates a Router rooted at dataRoot (see DataRoot for how that
// value is resolved from the environment).
func New(dataRoot string, open Opener) *Router {
	return &Router{
		dataRoot: dataRoot,
		open:     open,
		handles:  make(map[string]store.Store),
	}
}

// DataRoot resolves the directory holding global.db and personality.db:
// $MCP_MEMORY_DATA_ROOT if set, else ~/.mcp-memoria/data.
func DataRoot() (string, error) {
	if v := os.Getenv("MCP_MEMORY_DATA_ROOT"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolve home directory: %v", memerr.ErrStore, err)
	}
	return filepath.Join(home, ".mcp-memoria", "data"), nil
}

// ProjectRoot walks up from cwd looking for a recognized project marker.
// The second return value is false if cwd is not inside any recognized
// project, in which case the first value is meaningless.
func ProjectRoot(cwd string) (string, bool) {
	dir := cwd
	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// pathFor returns the database file a scope resolves to.
func (r *Router) pathFor(scope memory.Scope, cwd string) (string, error) {
	switch scope {
	case memory.ScopeGlobal:
		return filepath.Join(r.dataRoot, "global.db"), nil
	case memory.ScopePersonality:
		return filepath.Join(r.dataRoot, "personality.db"), nil
	case memory.ScopeProject:
		root, found := ProjectRoot(cwd)
		if !found {
			return filepath.Join(r.dataRoot, "project-default.db"), nil
		}
		return filepath.Join(root, ".mcp-memoria", "project.db"), nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", memerr.ErrInvalidInput, scope)
	}
}

// Resolve returns the Store for scope, opening it on first use and
// caching the handle thereafter. cwd drives project-root discovery for
// ScopeProject and is ignored for the other scopes.
func (r *Router) Resolve(scope memory.Scope, cwd string) (store.Store, error) {
	path, err := r.pathFor(scope, cwd)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.handles[path]; ok {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", memerr.ErrStore, err)
	}

	s, err := r.open(path)
	if err != nil {
		return nil, err
	}
	r.handles[path] = s
	return s, nil
}

// All returns every Store handle opened so far, used by the worker's
// orphan scan to sweep all known stores.
func (r *Router) All() []store.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Store, 0, len(r.handles))
	for _, s := range r.handles {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every open handle, called during graceful shutdown.
func (r *Router) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, s := range r.handles {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store %s: %w", path, err)
		}
	}
	return firstErr
}
