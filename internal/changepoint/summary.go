package changepoint

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CredibleMass is the posterior mass covered by reported intervals
const CredibleMass = 0.95

// Interval is a closed credible interval
type Interval struct {
	Lo float64 `msgpack:"lo" json:"lo"`
	Hi float64 `msgpack:"hi" json:"hi"`
}

// Contains reports whether v lies inside the interval
func (i Interval) Contains(v float64) bool {
	return v >= i.Lo && v <= i.Hi
}

// Width is Hi - Lo
func (i Interval) Width() float64 { return i.Hi - i.Lo }

// Summary describes the posterior of one axis
type Summary struct {
	// Tau1 and Tau2 are posterior means rounded to the nearest index
	Tau1     int      `msgpack:"tau1" json:"tau1"`
	Tau2     int      `msgpack:"tau2" json:"tau2"`
	Tau1Mean float64  `msgpack:"tau1_mean" json:"tau1_mean"`
	Tau2Mean float64  `msgpack:"tau2_mean" json:"tau2_mean"`
	Tau1HDI  Interval `msgpack:"tau1_hdi" json:"tau1_hdi"`
	Tau2HDI  Interval `msgpack:"tau2_hdi" json:"tau2_hdi"`

	Mu       [3]float64  `msgpack:"mu" json:"mu"`
	MuHDI    [3]Interval `msgpack:"mu_hdi" json:"mu_hdi"`
	Sigma    float64     `msgpack:"sigma" json:"sigma"`
	SigmaHDI Interval    `msgpack:"sigma_hdi" json:"sigma_hdi"`

	Draws int `msgpack:"draws" json:"draws"`
}

// ErrEmptySampleSet is returned when there is nothing to summarise
var ErrEmptySampleSet = errors.New("sample set has no draws")

// Summarize computes posterior means and 95% highest-density intervals. It
// reads set without modifying it, so repeated calls give equal results.
func Summarize(set *SampleSet) (Summary, error) {
	if set == nil || set.Len() == 0 {
		return Summary{}, ErrEmptySampleSet
	}

	var s Summary
	s.Draws = set.Len()

	for _, p := range ParamNames {
		values, err := set.Flatten(p)
		if err != nil {
			return Summary{}, err
		}
		mean := stat.Mean(values, nil)
		hdi := HDI(values, CredibleMass)

		switch p {
		case "tau1":
			s.Tau1Mean, s.Tau1, s.Tau1HDI = mean, int(math.Round(mean)), hdi
		case "tau2":
			s.Tau2Mean, s.Tau2, s.Tau2HDI = mean, int(math.Round(mean)), hdi
		case "mu1":
			s.Mu[0], s.MuHDI[0] = mean, hdi
		case "mu2":
			s.Mu[1], s.MuHDI[1] = mean, hdi
		case "mu3":
			s.Mu[2], s.MuHDI[2] = mean, hdi
		case "sigma":
			s.Sigma, s.SigmaHDI = mean, hdi
		}
	}
	return s, nil
}

// Displacements returns |mu2-mu1| and |mu3-mu2|, the mean shifts at tau1 and
// tau2
func (s Summary) Displacements() [2]float64 {
	return [2]float64{math.Abs(s.Mu[1] - s.Mu[0]), math.Abs(s.Mu[2] - s.Mu[1])}
}

// HDI returns the narrowest interval holding at least mass of the values. Ties
// go to the lowest interval. values is not modified.
func HDI(values []float64, mass float64) Interval {
	n := len(values)
	if n == 0 {
		return Interval{Lo: math.NaN(), Hi: math.NaN()}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	k := int(math.Ceil(mass * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	best := 0
	width := math.Inf(1)
	for i := 0; i+k-1 < n; i++ {
		if w := sorted[i+k-1] - sorted[i]; w < width {
			width = w
			best = i
		}
	}
	return Interval{Lo: sorted[best], Hi: sorted[best+k-1]}
}
