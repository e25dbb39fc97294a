package store

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationTable tracks the applied schema version
const MigrationTable = "schema_migrations"

// Migrations returns the run store schema migrations
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const insertRunSQL = `INSERT INTO runs (id, created_at, source, n, alerts, failed, report) VALUES (?, ?, ?, ?, ?, ?, ?)`

const insertTraceSQL = `INSERT INTO traces (run_id, axis, trace) VALUES (?, ?, ?)`

const listRunsSQL = `
SELECT id, created_at, source, n, alerts, failed
FROM runs
ORDER BY created_at DESC, id
LIMIT ?`

const getRunSQL = `SELECT id, created_at, source, n, alerts, failed, report FROM runs WHERE id = ?`

const getTraceSQL = `SELECT trace FROM traces WHERE run_id = ? AND axis = ?`

const deleteRunSQL = `DELETE FROM runs WHERE id = ?`
