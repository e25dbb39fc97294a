package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// File names look like 001_create_runs.up.sql and 001_create_runs.down.sql
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FSSource reads migrations from a filesystem, typically an embed.FS, and
// keeps the applied version in a SQLite table
type FSSource struct {
	fsys  fs.FS
	table string
}

// NewFSSource creates a source over fsys. An empty table name selects
// schema_migrations.
func NewFSSource(fsys fs.FS, table string) *FSSource {
	if table == "" {
		table = "schema_migrations"
	}
	return &FSSource{fsys: fsys, table: table}
}

// Migrations returns every migration in fsys, ascending by version. Files
// that do not match the naming scheme are ignored.
func (s *FSSource) Migrations() ([]Migration, error) {
	byVersion := make(map[int]*Migration)

	err := fs.WalkDir(s.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		parts := migrationFile.FindStringSubmatch(d.Name())
		if parts == nil {
			return nil
		}
		version, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
		body, err := fs.ReadFile(s.fsys, path)
		if err != nil {
			return err
		}

		mg, ok := byVersion[version]
		if !ok {
			mg = &Migration{Version: version, Name: strings.ReplaceAll(parts[2], "_", " ")}
			byVersion[version] = mg
		}
		if parts[3] == "up" {
			mg.Up = string(body)
		} else {
			mg.Down = string(body)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mg := range byVersion {
		out = append(out, *mg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// EnsureTable creates the version table if it is missing
func (s *FSSource) EnsureTable(ctx context.Context, db Execer) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, s.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// Version returns the highest recorded version, 0 for a fresh database
func (s *FSSource) Version(ctx context.Context, db Execer) (int, error) {
	var version int
	q := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", s.table)
	if err := db.QueryRowContext(ctx, q).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// SetVersion records version and forgets any above it, so a rollback
// lowers the reported version
func (s *FSSource) SetVersion(ctx context.Context, db Execer, version int) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE version > ?", s.table), version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	if version == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)", s.table)
	if _, err := db.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
