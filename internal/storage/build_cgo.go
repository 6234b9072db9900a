//go:build cgo_sqlite
// +build cgo_sqlite

package storage

// CGO build: mattn/go-sqlite3 with its C implementation of FTS5.
// Faster on large corpora; requires a C toolchain.
//
//   CGO_ENABLED=1 go build -tags "cgo_sqlite fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver to open.
	DriverName = "sqlite3"

	// BuildMode describes the compiled driver configuration.
	BuildMode = "cgo"
)
