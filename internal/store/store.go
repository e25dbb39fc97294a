// Package store persists detection runs and their posterior traces in a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/pkg/migrate"
)

// ErrNotFound is returned when a run or trace does not exist
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps ListRuns when no limit is given
const DefaultListLimit = 100

// RunInfo is the listing view of a stored run
type RunInfo struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Source    string      `json:"source"`
	N         int         `json:"n"`
	Alerts    []gnss.Axis `json:"alerts"`
	Failed    bool        `json:"failed"`
}

// Run is a stored run with its full report. Sample sets are loaded
// separately with GetTrace.
type Run struct {
	RunInfo
	Report *detector.Report `json:"report"`
}

// Store is a SQLite-backed run store
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens or creates the database at path and ensures the schema
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrate.NewFSSource(Migrations(), MigrationTable), logger)
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Debugw("opened run store", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a report and the sample set of every successful axis, and
// returns the new run ID
func (s *Store) SaveRun(ctx context.Context, source string, r *detector.Report) (string, error) {
	if r == nil {
		return "", errors.New("nil report")
	}
	blob, err := msgpack.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	id := uuid.NewString()
	createdAt := r.Finished
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertRunSQL,
		id, createdAt.UTC(), source, r.N, joinAxes(r.Alerts()), r.Err() != nil, blob)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range r.Axes {
		if res.Set == nil {
			continue
		}
		trace, err := msgpack.Marshal(res.Set)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s trace: %w", res.Axis, err)
		}
		if _, err := tx.ExecContext(ctx, insertTraceSQL, id, res.Axis.String(), trace); err != nil {
			return "", fmt.Errorf("failed to insert %s trace: %w", res.Axis, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Infow("stored run", "id", id, "source", source, "n", r.N)
	return id, nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		var info RunInfo
		var alerts string
		if err := rows.Scan(&info.ID, &info.CreatedAt, &info.Source, &info.N, &alerts, &info.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if info.Alerts, err = splitAxes(alerts); err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// GetRun loads one run and decodes its report
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	var alerts string
	var blob []byte
	err := s.db.QueryRowContext(ctx, getRunSQL, id).Scan(
		&run.ID, &run.CreatedAt, &run.Source, &run.N, &alerts, &run.Failed, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	if run.Alerts, err = splitAxes(alerts); err != nil {
		return nil, err
	}

	run.Report = &detector.Report{}
	if err := msgpack.Unmarshal(blob, run.Report); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	for i := range run.Report.Axes {
		if msg := run.Report.Axes[i].Error; msg != "" {
			run.Report.Axes[i].Err = errors.New(msg)
		}
	}
	return &run, nil
}

// GetTraceRaw returns the msgpack-encoded sample set of one axis
func (s *Store) GetTraceRaw(ctx context.Context, id string, axis gnss.Axis) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, getTraceSQL, id, axis.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trace %s/%s: %w", id, axis, err)
	}
	return blob, nil
}

// GetTrace returns the sample set of one axis
func (s *Store) GetTrace(ctx context.Context, id string, axis gnss.Axis) (*changepoint.SampleSet, error) {
	blob, err := s.GetTraceRaw(ctx, id, axis)
	if err != nil {
		return nil, err
	}
	var set changepoint.SampleSet
	if err := msgpack.Unmarshal(blob, &set); err != nil {
		return nil, fmt.Errorf("failed to decode trace %s/%s: %w", id, axis, err)
	}
	return &set, nil
}

// DeleteRun removes a run and its traces
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, deleteRunSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinAxes(axes []gnss.Axis) string {
	parts := make([]string, len(axes))
	for i, a := range axes {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

func splitAxes(s string) ([]gnss.Axis, error) {
	out := []gnss.Axis{}
	if s == "" {
		return out, nil
	}
	for _, p := range strings.Split(s, ",") {
		a, err := gnss.ParseAxis(p)
		if err != nil {
			return nil, fmt.Errorf("corrupt alert list %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
