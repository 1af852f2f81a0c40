//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package store

// This file is compiled whenever the sqlite_vec tag is absent (the
// default build, with or without CGO), or with the purego tag. It uses a pure Go SQLite implementation (modernc.org/sqlite);
// vector rescoring runs entirely in Go regardless (internal/search.cosine
// scores every loaded candidate), which is adequate at this service's
// target corpus size.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQL driver registered for this build.
	DriverName = "sqlite"

	// NativeCosineAvailable is always false: neither build pushes cosine
	// scoring into SQLite. Kept for diagnostics (--version, memory_stats)
	// alongside DriverName/BuildMode, not as a branch condition.
	NativeCosineAvailable = false

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
