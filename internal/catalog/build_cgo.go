//go:build cgo_sqlite
// +build cgo_sqlite

package catalog

// Compiled with the cgo_sqlite tag. Uses the C SQLite driver, which is
// faster but needs a C toolchain. FTS5 must be compiled in:
//
//   CGO_ENABLED=1 go build -tags "cgo_sqlite,fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver to open.
	DriverName = "sqlite3"

	// BuildMode describes the active driver configuration.
	BuildMode = "cgo"
)
