package store

// Alternate database/sql drivers kept registered behind the store's
// dialect switch. The shipped schema SQL is SQLite-flavored, so
// dialects other than DialectSQLite are not exercised by Open; the
// registration keeps a deployer's DSN switch a one-line change.
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Dialect names a SQL dialect the store's driver registry recognizes.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)
