package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/detector"
)

// TraceExt is the file extension of exported traces
const TraceExt = ".trace.msgpack"

// WriteTrace encodes a sample set as msgpack
func WriteTrace(w io.Writer, set *changepoint.SampleSet) error {
	return msgpack.NewEncoder(w).Encode(set)
}

// ReadTrace decodes a sample set written by WriteTrace
func ReadTrace(r io.Reader) (*changepoint.SampleSet, error) {
	var set changepoint.SampleSet
	if err := msgpack.NewDecoder(r).Decode(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ExportTraces writes one {stem}_{axis}.trace.msgpack file per successful
// axis into dir and returns the paths written
func ExportTraces(dir, stem string, r *detector.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	var paths []string
	for _, res := range r.Axes {
		if res.Set == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, res.Axis, TraceExt))
		if err := writeTraceFile(path, res.Set); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTraceFile(path string, set *changepoint.SampleSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteTrace(f, set); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
