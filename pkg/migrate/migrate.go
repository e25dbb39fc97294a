// Package migrate applies versioned SQL schema migrations to a SQLite
// database. Each migration runs with its version bookkeeping in one
// transaction.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Migration is one schema version with its forward and rollback SQL
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Source supplies migrations and records which version is applied
type Source interface {
	Migrations() ([]Migration, error)
	EnsureTable(ctx context.Context, db Execer) error
	Version(ctx context.Context, db Execer) (int, error)
	SetVersion(ctx context.Context, db Execer, version int) error
}

// Status reports the applied version and what is left to apply
type Status struct {
	Current int
	Latest  int
	Pending []Migration
}

// Migrator moves a database between schema versions
type Migrator struct {
	db     *sql.DB
	source Source
	logger *zap.SugaredLogger
}

// NewMigrator creates a migrator; a nil logger discards output
func NewMigrator(db *sql.DB, source Source, logger *zap.SugaredLogger) *Migrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Migrator{db: db, source: source, logger: logger}
}

// Up applies every pending migration
func (m *Migrator) Up(ctx context.Context) error {
	st, err := m.Status(ctx)
	if err != nil {
		return err
	}
	return m.To(ctx, st.Latest)
}

// Down rolls back to target, which must be below the current version
func (m *Migrator) Down(ctx context.Context, target int) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if target < 0 || target >= current {
		return fmt.Errorf("target version %d must be in [0, %d)", target, current)
	}
	return m.To(ctx, target)
}

// To migrates up or down until target is the applied version
func (m *Migrator) To(ctx context.Context, target int) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	all, err := m.source.Migrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if target >= current {
		for _, mg := range all {
			if mg.Version > current && mg.Version <= target {
				if err := m.apply(ctx, mg, true); err != nil {
					return fmt.Errorf("failed to apply migration %d: %w", mg.Version, err)
				}
			}
		}
		return nil
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Version > all[j].Version })
	for _, mg := range all {
		if mg.Version > target && mg.Version <= current {
			if err := m.apply(ctx, mg, false); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", mg.Version, err)
			}
		}
	}
	return nil
}

// Version returns the applied version, creating the tracking table if needed
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.source.EnsureTable(ctx, m.db); err != nil {
		return 0, err
	}
	return m.source.Version(ctx, m.db)
}

// Status returns the applied version, the newest available one and the
// migrations in between
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return Status{}, err
	}
	all, err := m.source.Migrations()
	if err != nil {
		return Status{}, fmt.Errorf("failed to load migrations: %w", err)
	}

	st := Status{Current: current, Latest: current}
	for _, mg := range all {
		if mg.Version > current {
			st.Pending = append(st.Pending, mg)
		}
		if mg.Version > st.Latest {
			st.Latest = mg.Version
		}
	}
	return st, nil
}

func (m *Migrator) apply(ctx context.Context, mg Migration, up bool) error {
	direction, stmt, version := "up", mg.Up, mg.Version
	if !up {
		direction, stmt, version = "down", mg.Down, mg.Version-1
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", mg.Version, direction)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if err := m.source.SetVersion(ctx, tx, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	m.logger.Infow("applied migration", "version", mg.Version, "name", mg.Name, "direction", direction)
	return nil
}
