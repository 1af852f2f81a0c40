//go:build sqlite_vec
// +build sqlite_vec

package store

// This file is compiled when building with CGO and the sqlite_vec tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// This swaps in the CGO sqlite3 driver; vector rescoring is unaffected and
// still runs entirely in Go (internal/search.cosine), consistent with this
// service's no-ANN-indexing design — there is no in-SQL cosine path in
// either build.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQL driver registered for this build.
	DriverName = "sqlite3"

	// NativeCosineAvailable is always false: neither build pushes cosine
	// scoring into SQLite. Kept for diagnostics (--version, memory_stats)
	// alongside DriverName/BuildMode, not as a branch condition.
	NativeCosineAvailable = false

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
