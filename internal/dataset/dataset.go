// Package dataset reads and writes three-axis coordinate tables in the
// container formats the detector accepts: NumPy .npy, CSV, SQLite and a
// PostgreSQL/TimescaleDB table.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

// Format identifies a container format
type Format string

const (
	FormatNPY    Format = "npy"
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
	FormatHDF5   Format = "hdf5"
)

// DetectFormat maps a file extension to a Format
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return FormatNPY, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	case ".h5", ".hdf5":
		return FormatHDF5, nil
	}
	return "", gnss.DataFormatf(path, "unrecognised file extension %q (want .npy, .csv, .db or .sqlite)", filepath.Ext(path))
}

// Load reads the table at path, choosing the reader by extension, and
// validates it
func Load(ctx context.Context, path string) (*gnss.Observations, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var obs *gnss.Observations
	switch format {
	case FormatNPY:
		obs, err = LoadNPY(path)
	case FormatCSV:
		obs, err = LoadCSV(path)
	case FormatSQLite:
		obs, err = LoadSQLite(ctx, path)
	case FormatHDF5:
		return nil, gnss.DataFormatf(path, "HDF5 containers are not supported; export the coordinates dataset to .npy or .csv")
	}
	if err != nil {
		return nil, err
	}
	if err := obs.Validate(); err != nil {
		return nil, withSource(err, path)
	}
	return obs, nil
}

// withSource stamps path onto a DataFormatError that lacks one
func withSource(err error, path string) error {
	var dfe *gnss.DataFormatError
	if errors.As(err, &dfe) && dfe.Source == "" {
		dfe.Source = path
	}
	return err
}

// Save writes obs to path in the format implied by its extension
func Save(ctx context.Context, path string, obs *gnss.Observations) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatNPY:
		return SaveNPY(path, obs)
	case FormatCSV:
		return SaveCSV(path, obs)
	case FormatSQLite:
		return SaveSQLite(ctx, path, obs)
	}
	return fmt.Errorf("writing %s containers is not supported", format)
}

// Inspect prints the table shape and its first rows
func Inspect(w io.Writer, obs *gnss.Observations, rows int) {
	fmt.Fprintf(w, "Shape: (%d, 3)\n", obs.Len())
	if rows > obs.Len() {
		rows = obs.Len()
	}
	fmt.Fprintf(w, "%8s %14s %14s %14s\n", "row", "X", "Y", "Z")
	for t := 0; t < rows; t++ {
		fmt.Fprintf(w, "%8d %14.6f %14.6f %14.6f\n", t, obs.At(t, gnss.AxisX), obs.At(t, gnss.AxisY), obs.At(t, gnss.AxisZ))
	}
}
