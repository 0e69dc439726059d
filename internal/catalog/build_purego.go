//go:build !cgo_sqlite
// +build !cgo_sqlite

package catalog

// Default build: pure Go SQLite, no C compiler required, FTS5 included.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver to open.
	DriverName = "sqlite"

	// BuildMode describes the active driver configuration.
	BuildMode = "purego"
)
