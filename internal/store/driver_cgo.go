//go:build cgo

package store

// cgo builds use the mattn/go-sqlite3 driver.
import _ "github.com/mattn/go-sqlite3"

// DriverName is the database/sql driver name registered for SQLite on
// this build.
const DriverName = "sqlite3"
