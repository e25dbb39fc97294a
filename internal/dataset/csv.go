package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

// LoadCSV reads a CSV file. A header row is optional; when present and it
// names x, y and z columns those are used, otherwise the file must have
// exactly three columns.
func LoadCSV(path string) (*gnss.Observations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	obs, err := ReadCSV(f)
	if err != nil {
		return nil, withSource(err, path)
	}
	return obs, nil
}

// ReadCSV parses CSV from r
func ReadCSV(r io.Reader) (*gnss.Observations, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, gnss.DataFormatf("", "invalid CSV: %v", err)
	}
	if len(records) == 0 {
		return nil, gnss.DataFormatf("", "empty CSV")
	}

	cols := [3]int{0, 1, 2}
	width := 3
	if _, err := parseRow(records[0], cols); err != nil {
		// first row is a header
		named, ok := headerColumns(records[0])
		if ok {
			cols = named
			width = 0
		} else if len(records[0]) != 3 {
			return nil, gnss.DataFormatf("", "header %v does not name x, y and z columns", records[0])
		}
		records = records[1:]
	}

	rows := make([][3]float64, 0, len(records))
	for i, rec := range records {
		if width != 0 && len(rec) != width {
			return nil, gnss.DataFormatf("", "row %d has %d columns, want 3", i+1, len(rec))
		}
		row, err := parseRow(rec, cols)
		if err != nil {
			return nil, gnss.DataFormatf("", "row %d: %v", i+1, err)
		}
		rows = append(rows, row)
	}
	return gnss.FromRows(rows), nil
}

func headerColumns(header []string) ([3]int, bool) {
	var cols [3]int
	found := 0
	for i, h := range header {
		var a gnss.Axis
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "x":
			a = gnss.AxisX
		case "y":
			a = gnss.AxisY
		case "z":
			a = gnss.AxisZ
		default:
			continue
		}
		cols[a] = i
		found |= 1 << a
	}
	return cols, found == 0b111
}

func parseRow(rec []string, cols [3]int) ([3]float64, error) {
	var row [3]float64
	for i, c := range cols {
		if c >= len(rec) {
			return row, fmt.Errorf("missing column %d", c+1)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
		if err != nil {
			return row, fmt.Errorf("column %d is not numeric: %q", c+1, rec[c])
		}
		row[i] = v
	}
	return row, nil
}

// SaveCSV writes obs with an x,y,z header
func SaveCSV(path string, obs *gnss.Observations) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteCSV(f, obs); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes obs to w with an x,y,z header
func WriteCSV(w io.Writer, obs *gnss.Observations) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"x", "y", "z"}); err != nil {
		return err
	}
	for _, r := range obs.Rows() {
		rec := []string{
			strconv.FormatFloat(r[0], 'g', -1, 64),
			strconv.FormatFloat(r[1], 'g', -1, 64),
			strconv.FormatFloat(r[2], 'g', -1, 64),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
