// Package postgres provides PostgreSQL-backed implementations of the thread
// Repository and Checkpointer interfaces. The schema is created on
// construction with CREATE TABLE IF NOT EXISTS, so no migration tooling is
// required for a fresh database.
package postgres

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// Open opens a PostgreSQL database using the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}
