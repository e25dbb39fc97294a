package changepoint

import (
	"encoding/json"
	"math"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"gonum.org/v1/gonum/stat"
)

// ParamDiagnostics holds mixing statistics for one parameter
type ParamDiagnostics struct {
	Param string  `msgpack:"param" json:"param"`
	RHat  float64 `msgpack:"r_hat" json:"r_hat"`
	ESS   float64 `msgpack:"ess" json:"ess"`
}

// MarshalJSON writes non-finite statistics as null
func (p ParamDiagnostics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Param string   `json:"param"`
		RHat  *float64 `json:"r_hat"`
		ESS   *float64 `json:"ess"`
	}{p.Param, finite(p.RHat), finite(p.ESS)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Diagnostics holds split-R-hat and effective sample size per parameter
type Diagnostics struct {
	Params []ParamDiagnostics `msgpack:"params" json:"params"`
}

// Thresholds above/below which a ConvergenceWarning is raised
const (
	DefaultMaxRHat = 1.05
	DefaultMinESS  = 100.0
)

// Diagnose computes split-R-hat and bulk ESS for every latent
func Diagnose(set *SampleSet) (Diagnostics, error) {
	var d Diagnostics
	for _, p := range ParamNames {
		chains, err := set.PerChain(p)
		if err != nil {
			return Diagnostics{}, err
		}
		d.Params = append(d.Params, ParamDiagnostics{
			Param: p,
			RHat:  SplitRHat(chains),
			ESS:   EffectiveSampleSize(chains),
		})
	}
	return d, nil
}

// MaxRHat is the largest finite R-hat, or NaN if none is finite
func (d Diagnostics) MaxRHat() float64 {
	out := math.NaN()
	for _, p := range d.Params {
		if math.IsNaN(p.RHat) {
			continue
		}
		if math.IsNaN(out) || p.RHat > out {
			out = p.RHat
		}
	}
	return out
}

// MinESS is the smallest ESS across parameters
func (d Diagnostics) MinESS() float64 {
	out := math.Inf(1)
	for _, p := range d.Params {
		if p.ESS < out {
			out = p.ESS
		}
	}
	return out
}

// Warnings returns one ConvergenceWarning per parameter that fails either
// threshold
func (d Diagnostics) Warnings(axis gnss.Axis, maxRHat, minESS float64) []*gnss.ConvergenceWarning {
	var out []*gnss.ConvergenceWarning
	for _, p := range d.Params {
		if p.RHat > maxRHat || p.ESS < minESS {
			out = append(out, &gnss.ConvergenceWarning{Axis: axis, Param: p.Param, RHat: p.RHat, ESS: p.ESS})
		}
	}
	return out
}

// splitChains halves every chain, dropping the middle draw of odd chains
func splitChains(chains [][]float64) [][]float64 {
	var out [][]float64
	for _, c := range chains {
		half := len(c) / 2
		if half < 2 {
			continue
		}
		out = append(out, c[:half], c[len(c)-half:])
	}
	return out
}

// SplitRHat is the Gelman-Rubin potential scale reduction on split chains.
// It is NaN when the chains are too short and 1 when every draw is equal.
func SplitRHat(chains [][]float64) float64 {
	split := splitChains(chains)
	if len(split) < 2 {
		return math.NaN()
	}
	n := float64(len(split[0]))

	means := make([]float64, len(split))
	var w float64
	for i, c := range split {
		m, v := stat.MeanVariance(c, nil)
		means[i] = m
		w += v
	}
	w /= float64(len(split))
	b := n * stat.Variance(means, nil)

	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// EffectiveSampleSize is the multi-chain bulk ESS with Geyer's initial
// positive sequence truncation
func EffectiveSampleSize(chains [][]float64) float64 {
	if len(chains) == 0 {
		return 0
	}
	n := len(chains[0])
	for _, c := range chains {
		if len(c) < n {
			n = len(c)
		}
	}
	m := len(chains)
	total := float64(m * n)
	if n < 4 {
		return total
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c[:n], nil)
	}
	w := stat.Mean(vars, nil)
	varPlus := w * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 {
		return total
	}

	// mean autocovariance across chains at lag t
	acov := func(t int) float64 {
		var sum float64
		for i, c := range chains {
			var s float64
			for j := 0; j+t < n; j++ {
				s += (c[j] - means[i]) * (c[j+t] - means[i])
			}
			sum += s / float64(n)
		}
		return sum / float64(m)
	}
	rho := func(t int) float64 {
		if t == 0 {
			return 1
		}
		return 1 - (w-acov(t))/varPlus
	}

	tau := -1.0
	prevPair := math.Inf(1)
	for t := 0; t+1 < n; t += 2 {
		pair := rho(t) + rho(t+1)
		if pair < 0 {
			break
		}
		// initial monotone sequence
		if pair > prevPair {
			pair = prevPair
		}
		tau += 2 * pair
		prevPair = pair
	}
	if tau <= 0 {
		return total
	}
	ess := total / tau
	if ess > total*math.Log10(total) {
		ess = total * math.Log10(total)
	}
	return ess
}
