package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

// ImportOptions controls how ImportPostgres writes a series
type ImportOptions struct {
	// Start is the timestamp of the first epoch; later epochs follow every
	// Interval
	Start    time.Time
	Interval time.Duration

	// Create creates the table when it does not exist
	Create bool

	// Hypertable converts the table to a TimescaleDB hypertable on its time
	// column. Requires Create.
	Hypertable bool

	// Replace deletes the station's existing rows first
	Replace bool
}

// CreateTableSQL returns the DDL for a table LoadPostgres can read
func (s PostgresSource) CreateTableSQL() (string, error) {
	table, cols, err := s.identifiers()
	if err != nil {
		return "", err
	}
	q := func(c string) string { return pgx.Identifier{c}.Sanitize() }
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TIMESTAMPTZ NOT NULL,
	%s TEXT NOT NULL,
	%s DOUBLE PRECISION NOT NULL,
	%s DOUBLE PRECISION NOT NULL,
	%s DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (%s, %s)
)`, pgx.Identifier(table).Sanitize(), q(cols[4]), q(cols[3]), q(cols[0]), q(cols[1]), q(cols[2]), q(cols[3]), q(cols[4])), nil
}

// ImportPostgres bulk loads obs as one station's series with COPY, in a
// single transaction, and returns the number of rows written
func ImportPostgres(ctx context.Context, src PostgresSource, obs *gnss.Observations, opts ImportOptions) (int64, error) {
	table, cols, err := src.identifiers()
	if err != nil {
		return 0, err
	}
	if src.Station == "" {
		return 0, gnss.Configf("pg-station", "station name is required")
	}
	if opts.Interval <= 0 {
		return 0, gnss.Configf("interval", "must be positive, got %v", opts.Interval)
	}
	if opts.Hypertable && !opts.Create {
		return 0, gnss.Configf("hypertable", "requires table creation")
	}
	if err := obs.Validate(); err != nil {
		return 0, err
	}

	pool, err := pgxpool.New(ctx, src.DSN)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("failed to ping database: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ident := pgx.Identifier(table)
	if opts.Create {
		ddl, err := src.CreateTableSQL()
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return 0, fmt.Errorf("failed to create table: %w", err)
		}
		if opts.Hypertable {
			if _, err := tx.Exec(ctx, `SELECT create_hypertable($1::regclass, $2::name, if_not_exists => TRUE)`,
				ident.Sanitize(), cols[4]); err != nil {
				return 0, fmt.Errorf("failed to create hypertable: %w", err)
			}
		}
	}

	if opts.Replace {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident.Sanitize(), pgx.Identifier{cols[3]}.Sanitize())
		if _, err := tx.Exec(ctx, del, src.Station); err != nil {
			return 0, fmt.Errorf("failed to delete existing rows: %w", err)
		}
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	n := obs.Len()
	copied, err := tx.CopyFrom(ctx, ident,
		[]string{cols[3], cols[4], cols[0], cols[1], cols[2]},
		pgx.CopyFromSlice(n, func(i int) ([]any, error) {
			return []any{
				src.Station,
				start.Add(time.Duration(i) * opts.Interval),
				obs.At(i, gnss.AxisX), obs.At(i, gnss.AxisY), obs.At(i, gnss.AxisZ),
			}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("failed to copy coordinates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return copied, nil
}
