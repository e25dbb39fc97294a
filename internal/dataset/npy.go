package dataset

import (
	"fmt"
	"io"
	"os"

	"github.com/sbinet/npyio/npy"
	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

// LoadNPY reads a float64 (N, 3) array from a .npy file
func LoadNPY(path string) (*gnss.Observations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	obs, err := ReadNPY(f)
	if err != nil {
		return nil, withSource(err, path)
	}
	return obs, nil
}

// ReadNPY decodes a .npy stream into observations
func ReadNPY(r io.Reader) (*gnss.Observations, error) {
	var m mat.Dense
	if err := npy.Read(r, &m); err != nil {
		return nil, gnss.DataFormatf("", "not a numeric 2-D array: %v", err)
	}
	rows, cols := m.Dims()
	if cols != 3 {
		return nil, gnss.DataFormatf("", "array has shape (%d, %d), want (N, 3)", rows, cols)
	}
	return gnss.NewObservations(
		mat.Col(nil, 0, &m),
		mat.Col(nil, 1, &m),
		mat.Col(nil, 2, &m),
	)
}

// SaveNPY writes obs as a float64 (N, 3) array
func SaveNPY(path string, obs *gnss.Observations) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteNPY(f, obs); err != nil {
		return err
	}
	return f.Close()
}

// WriteNPY encodes obs as a float64 (N, 3) array
func WriteNPY(w io.Writer, obs *gnss.Observations) error {
	if obs.Len() == 0 {
		return fmt.Errorf("refusing to write an empty table")
	}
	m := mat.NewDense(obs.Len(), 3, nil)
	for _, a := range gnss.Axes {
		m.SetCol(int(a), obs.Column(a))
	}
	return npy.Write(w, m)
}
