package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSource selects one station's coordinate series from a
// PostgreSQL or TimescaleDB table
type PostgresSource struct {
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
	Station string `yaml:"station"`

	// Column names; empty values default to station, time, x, y and z
	StationColumn string    `yaml:"station_column,omitempty"`
	TimeColumn    string    `yaml:"time_column,omitempty"`
	Columns       [3]string `yaml:"columns,omitempty"`
}

// identifiers checks and returns the table parts and the x, y, z, station
// and time column names with defaults applied
func (s PostgresSource) identifiers() ([]string, [5]string, error) {
	var cols [5]string
	if s.Table == "" {
		return nil, cols, gnss.Configf("pg-table", "table name is required")
	}
	table := strings.Split(s.Table, ".")
	if len(table) > 2 {
		return nil, cols, gnss.Configf("pg-table", "invalid table name %q", s.Table)
	}
	for _, p := range table {
		if !identifierRe.MatchString(p) {
			return nil, cols, gnss.Configf("pg-table", "invalid table name %q", s.Table)
		}
	}

	cols = [5]string{s.Columns[0], s.Columns[1], s.Columns[2], s.StationColumn, s.TimeColumn}
	for i, def := range []string{"x", "y", "z", "station", "time"} {
		if cols[i] == "" {
			cols[i] = def
		}
		if !identifierRe.MatchString(cols[i]) {
			return nil, cols, gnss.Configf("pg-columns", "invalid column name %q", cols[i])
		}
	}
	return table, cols, nil
}

// Query builds the SELECT statement for the source. Every identifier is
// checked and quoted; the station is bound as $1.
func (s PostgresSource) Query() (string, error) {
	table, cols, err := s.identifiers()
	if err != nil {
		return "", err
	}
	for i, p := range table {
		table[i] = pq.QuoteIdentifier(p)
	}
	var quoted [5]string
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	return fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = $1 ORDER BY %s",
		quoted[0], quoted[1], quoted[2], strings.Join(table, "."), quoted[3], quoted[4]), nil
}

// LoadPostgres reads one station's series in time order
func LoadPostgres(ctx context.Context, src PostgresSource) (*gnss.Observations, error) {
	query, err := src.Query()
	if err != nil {
		return nil, err
	}
	if src.Station == "" {
		return nil, gnss.Configf("pg-station", "station name is required")
	}

	db, err := sql.Open("postgres", src.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, src.Station)
	if err != nil {
		return nil, fmt.Errorf("failed to query coordinates: %w", err)
	}
	defer rows.Close()

	source := src.Table + "/" + src.Station
	obs, err := scanRows(rows)
	if err != nil {
		return nil, withSource(err, source)
	}
	if err := obs.Validate(); err != nil {
		return nil, withSource(err, source)
	}
	return obs, nil
}
