//go:build !cgo

package store

// Pure-Go fallback driver for builds without cgo.
import _ "modernc.org/sqlite"

// DriverName is the database/sql driver name registered for SQLite on
// this build.
const DriverName = "sqlite"
