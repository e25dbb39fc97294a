package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

const coordinatesSchema = `
	CREATE TABLE IF NOT EXISTS coordinates (
		idx INTEGER PRIMARY KEY,
		x   REAL NOT NULL,
		y   REAL NOT NULL,
		z   REAL NOT NULL
	)`

// LoadSQLite reads the coordinates table of a SQLite database in idx order
func LoadSQLite(ctx context.Context, path string) (*gnss.Observations, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT x, y, z FROM coordinates ORDER BY idx`)
	if err != nil {
		return nil, gnss.DataFormatf(path, "failed to query coordinates table: %v", err)
	}
	defer rows.Close()

	obs, err := scanRows(rows)
	if err != nil {
		return nil, withSource(err, path)
	}
	return obs, nil
}

// SaveSQLite replaces the coordinates table of a SQLite database with obs
func SaveSQLite(ctx context.Context, path string, obs *gnss.Observations) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, coordinatesSchema); err != nil {
		return fmt.Errorf("failed to create coordinates table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM coordinates`); err != nil {
		return fmt.Errorf("failed to clear coordinates table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO coordinates (idx, x, y, z) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for t, r := range obs.Rows() {
		if _, err := stmt.ExecContext(ctx, t, r[0], r[1], r[2]); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", t, err)
		}
	}
	return tx.Commit()
}

// scanRows collects (x, y, z) rows; NULLs are rejected
func scanRows(rows *sql.Rows) (*gnss.Observations, error) {
	var data [][3]float64
	for rows.Next() {
		var x, y, z sql.NullFloat64
		if err := rows.Scan(&x, &y, &z); err != nil {
			return nil, gnss.DataFormatf("", "row %d: %v", len(data), err)
		}
		if !x.Valid || !y.Valid || !z.Valid {
			return nil, gnss.DataFormatf("", "row %d has a NULL coordinate", len(data))
		}
		data = append(data, [3]float64{x.Float64, y.Float64, z.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return gnss.FromRows(data), nil
}
