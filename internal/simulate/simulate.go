// Package simulate generates piecewise-constant three-axis coordinate series
// with Gaussian noise, for exercising the detector without field data.
package simulate

import (
	"math/rand/v2"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"gonum.org/v1/gonum/stat/distuv"
)

// Params describes a synthetic dataset
type Params struct {
	NPoints int `yaml:"n_points" json:"n_points"`

	// ChangePoints are the first indices of each new segment, ascending
	ChangePoints []int `yaml:"change_points" json:"change_points"`

	// Means holds one [x, y, z] mean per segment. When empty the means cycle
	// through 0, 1, -1 on every axis.
	Means [][3]float64 `yaml:"means" json:"means,omitempty"`

	// Sigmas holds one noise standard deviation per segment. When empty every
	// segment uses 0.5.
	Sigmas []float64 `yaml:"sigmas" json:"sigmas,omitempty"`

	Seed uint64 `yaml:"seed" json:"seed"`
}

// DefaultParams is the reference scenario: 1000 epochs, shifts at 300 and
// 600, means 0, 1, -1 and noise 0.5
func DefaultParams() Params {
	return Params{
		NPoints:      1000,
		ChangePoints: []int{300, 600},
		Seed:         42,
	}
}

// AdvancedParams keeps the reference shifts but widens the noise in each
// later segment
func AdvancedParams() Params {
	p := DefaultParams()
	p.Means = [][3]float64{{0, 0, 0}, {1, 1, 1}, {-1, -1, -1}}
	p.Sigmas = []float64{0.5, 0.7, 1.0}
	return p
}

var cycle = [3]float64{0, 1, -1}

func (p Params) segments() int { return len(p.ChangePoints) + 1 }

// Mean returns the mean of segment k on axis a after defaults are applied
func (p Params) Mean(k int, a gnss.Axis) float64 {
	if len(p.Means) == 0 {
		return cycle[k%len(cycle)]
	}
	return p.Means[k][a]
}

// Sigma returns the noise of segment k after defaults are applied
func (p Params) Sigma(k int) float64 {
	if len(p.Sigmas) == 0 {
		return 0.5
	}
	return p.Sigmas[k]
}

// Validate checks that the change points split [0, NPoints) into non-empty
// segments and that means/sigmas match the segment count
func (p Params) Validate() error {
	if p.NPoints <= 0 {
		return gnss.Configf("n_points", "must be positive, got %d", p.NPoints)
	}
	prev := 0
	for i, cp := range p.ChangePoints {
		if cp <= prev || cp >= p.NPoints {
			return gnss.Configf("change_points", "entry %d (%d) must be ascending and inside (0, %d)", i, cp, p.NPoints)
		}
		prev = cp
	}
	if len(p.Means) != 0 && len(p.Means) != p.segments() {
		return gnss.Configf("means", "need %d segment means, got %d", p.segments(), len(p.Means))
	}
	if len(p.Sigmas) != 0 && len(p.Sigmas) != p.segments() {
		return gnss.Configf("sigmas", "need %d segment sigmas, got %d", p.segments(), len(p.Sigmas))
	}
	for i, s := range p.Sigmas {
		if s < 0 {
			return gnss.Configf("sigmas", "entry %d is negative", i)
		}
	}
	return nil
}

// Generate draws the X, Y and Z series in that order from a single stream
// seeded with p.Seed, so equal params give equal data.
func Generate(p Params) (*gnss.Observations, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(p.Seed, 0x9e3779b97f4a7c15)

	var cols [3][]float64
	for _, a := range gnss.Axes {
		cols[a] = make([]float64, 0, p.NPoints)
		bounds := append(append([]int{0}, p.ChangePoints...), p.NPoints)
		for k := 0; k+1 < len(bounds); k++ {
			noise := distuv.Normal{Mu: p.Mean(k, a), Sigma: p.Sigma(k), Src: src}
			for t := bounds[k]; t < bounds[k+1]; t++ {
				if p.Sigma(k) == 0 {
					cols[a] = append(cols[a], p.Mean(k, a))
					continue
				}
				cols[a] = append(cols[a], noise.Rand())
			}
		}
	}
	return gnss.NewObservations(cols[0], cols[1], cols[2])
}

// TrueTaus converts the generator's change points to the model's changepoint
// indices: the last index of the segment before each shift
func (p Params) TrueTaus() []int {
	out := make([]int, len(p.ChangePoints))
	for i, cp := range p.ChangePoints {
		out[i] = cp - 1
	}
	return out
}
