package changepoint

import (
	"fmt"
	"math"
	"sort"
)

// Cost scores a candidate segment signal[start:end] for PELT. Lower is a
// better fit.
type Cost interface {
	Fit(signal []float64)
	Error(start, end int) float64
}

// NewCost returns the cost model registered under name: "l2" or "rbf"
func NewCost(name string) (Cost, error) {
	switch name {
	case "", "l2":
		return &L2Cost{}, nil
	case "rbf":
		return &RBFCost{}, nil
	}
	return nil, fmt.Errorf("unknown screen cost %q (want l2 or rbf)", name)
}

// L2Cost is the residual sum of squares around the segment mean, i.e. a
// Gaussian mean-shift cost
type L2Cost struct {
	cum   []float64
	cumSq []float64
}

// Fit precomputes prefix sums
func (c *L2Cost) Fit(signal []float64) {
	c.cum = make([]float64, len(signal)+1)
	c.cumSq = make([]float64, len(signal)+1)
	for i, v := range signal {
		c.cum[i+1] = c.cum[i] + v
		c.cumSq[i+1] = c.cumSq[i] + v*v
	}
}

// Error returns the segment SSE in O(1)
func (c *L2Cost) Error(start, end int) float64 {
	if start >= end || start < 0 || end >= len(c.cum) {
		return math.Inf(1)
	}
	n := float64(end - start)
	s := c.cum[end] - c.cum[start]
	q := c.cumSq[end] - c.cumSq[start]
	return math.Max(0, q-s*s/n)
}

// rbfGammaSample bounds the number of points used for the median heuristic
const rbfGammaSample = 500

// RBFCost is the kernel cost with a Gaussian kernel: sum of the diagonal of
// the segment Gram matrix minus the mean of all its entries. It picks up
// changes in distribution, not just in mean.
type RBFCost struct {
	gamma float64
	// integral[i][j] is the sum of gram[0:i][0:j]
	integral [][]float64
}

// medianGamma is 1 / median pairwise squared distance over an evenly strided
// subsample of the signal
func medianGamma(signal []float64) float64 {
	stride := 1
	if len(signal) > rbfGammaSample {
		stride = len(signal) / rbfGammaSample
	}
	var pts []float64
	for i := 0; i < len(signal); i += stride {
		pts = append(pts, signal[i])
	}

	var distances []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			diff := pts[i] - pts[j]
			if d := diff * diff; d > 0 {
				distances = append(distances, d)
			}
		}
	}
	if len(distances) == 0 {
		return 1.0
	}
	sort.Float64s(distances)
	median := distances[len(distances)/2]
	if median == 0 {
		return 1.0
	}
	return 1.0 / median
}

// Fit computes gamma and the summed-area table of the Gram matrix so that
// Error runs in constant time. Memory is O(n^2).
func (r *RBFCost) Fit(signal []float64) {
	n := len(signal)
	r.gamma = medianGamma(signal)
	r.integral = make([][]float64, n+1)
	for i := range r.integral {
		r.integral[i] = make([]float64, n+1)
	}
	for i := 0; i < n; i++ {
		var row float64
		for j := 0; j < n; j++ {
			diff := signal[i] - signal[j]
			row += math.Exp(-r.gamma * diff * diff)
			r.integral[i+1][j+1] = r.integral[i][j+1] + row
		}
	}
}

// Error is length - sum(gram[start:end][start:end]) / length
func (r *RBFCost) Error(start, end int) float64 {
	if start >= end || start < 0 || end >= len(r.integral) {
		return math.Inf(1)
	}
	length := float64(end - start)
	total := r.integral[end][end] - r.integral[start][end] - r.integral[end][start] + r.integral[start][start]
	return length - total/length
}
