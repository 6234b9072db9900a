//go:build !cgo_sqlite
// +build !cgo_sqlite

package storage

// Default build: pure Go SQLite driver, no C compiler required.
// Vector similarity is computed in Go either way, so the drivers are
// interchangeable.
//
//   go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver to open.
	DriverName = "sqlite"

	// BuildMode describes the compiled driver configuration.
	BuildMode = "purego"
)
