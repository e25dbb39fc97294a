package gnss

import (
	"math"
)

// Observations is an immutable n×3 table of coordinates, one row per epoch
type Observations struct {
	cols [3][]float64
}

// NewObservations copies the three columns into a new table. All columns
// must have the same length.
func NewObservations(x, y, z []float64) (*Observations, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return nil, DataFormatf("", "axis columns differ in length (x=%d y=%d z=%d)", len(x), len(y), len(z))
	}
	o := &Observations{}
	for i, c := range [][]float64{x, y, z} {
		o.cols[i] = append([]float64(nil), c...)
	}
	return o, nil
}

// FromRows builds a table from row-major [x, y, z] triples
func FromRows(rows [][3]float64) *Observations {
	o := &Observations{}
	for i := range o.cols {
		o.cols[i] = make([]float64, len(rows))
	}
	for t, r := range rows {
		for i := range o.cols {
			o.cols[i][t] = r[i]
		}
	}
	return o
}

// Len returns the number of epochs
func (o *Observations) Len() int {
	return len(o.cols[0])
}

// Column returns a copy of the series for axis a
func (o *Observations) Column(a Axis) []float64 {
	return append([]float64(nil), o.cols[a]...)
}

// At returns the value at epoch t on axis a
func (o *Observations) At(t int, a Axis) float64 {
	return o.cols[a][t]
}

// Rows returns the table as row-major triples
func (o *Observations) Rows() [][3]float64 {
	rows := make([][3]float64, o.Len())
	for t := range rows {
		for i := range o.cols {
			rows[t][i] = o.cols[i][t]
		}
	}
	return rows
}

// Permute returns a table whose column i is column order[i] of o
func (o *Observations) Permute(order [3]Axis) *Observations {
	p := &Observations{}
	for i, a := range order {
		p.cols[i] = append([]float64(nil), o.cols[a]...)
	}
	return p
}

// Validate rejects empty tables and non-finite values
func (o *Observations) Validate() error {
	if o.Len() == 0 {
		return DataFormatf("", "no observations")
	}
	for _, a := range Axes {
		for t, v := range o.cols[a] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return DataFormatf("", "non-finite value %v at row %d on axis %s", v, t, a)
			}
		}
	}
	return nil
}
