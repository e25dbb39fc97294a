// Package changepoint implements a Bayesian two-changepoint model for a
// single coordinate series: a piecewise-constant mean with three segments and
// a shared noise scale, sampled with a blocked Gibbs/Metropolis scheme.
package changepoint

import (
	"math"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"gonum.org/v1/gonum/stat/distuv"
)

// Priors holds the model hyperparameters
type Priors struct {
	// MeanScale is the standard deviation of the zero-centred Normal prior on
	// each segment mean
	MeanScale float64 `yaml:"prior_mean_scale" json:"prior_mean_scale"`

	// SigmaScale is the scale of the half-Normal prior on the noise scale
	SigmaScale float64 `yaml:"prior_sigma_scale" json:"prior_sigma_scale"`

	// MinGap is the enforced separation: tau2 > tau1 + MinGap
	MinGap int `yaml:"min_gap" json:"min_gap"`
}

// DefaultPriors returns unit-scale priors and a 100 sample gap
func DefaultPriors() Priors {
	return Priors{
		MeanScale:  1.0,
		SigmaScale: 1.0,
		MinGap:     100,
	}
}

// MinLength is the shortest series a model with the given gap accepts. It
// keeps every segment long enough to estimate its mean; gap must be >= 1.
func MinLength(gap int) int {
	return 2*gap + 1
}

// State is one joint value of the latent variables
type State struct {
	Tau1  int        `msgpack:"tau1" json:"tau1"`
	Tau2  int        `msgpack:"tau2" json:"tau2"`
	Mu    [3]float64 `msgpack:"mu" json:"mu"`
	Sigma float64    `msgpack:"sigma" json:"sigma"`
}

// Model is the joint density over (tau1, tau2, mu1..mu3, sigma) and one
// observed series. It is immutable after construction.
type Model struct {
	y      []float64
	priors Priors

	// cum[i] and cumSq[i] hold sums over y[0:i]
	cum   []float64
	cumSq []float64

	muPrior    distuv.Normal
	sigmaPrior distuv.Normal
}

// NewModel validates y against the priors and precomputes segment sums
func NewModel(y []float64, priors Priors) (*Model, error) {
	if priors.MinGap < 1 {
		return nil, gnss.Configf("min_gap", "must be >= 1, got %d", priors.MinGap)
	}
	if !(priors.MeanScale > 0) || math.IsInf(priors.MeanScale, 0) {
		return nil, gnss.Configf("prior_mean_scale", "must be a positive finite number, got %v", priors.MeanScale)
	}
	if !(priors.SigmaScale > 0) || math.IsInf(priors.SigmaScale, 0) {
		return nil, gnss.Configf("prior_sigma_scale", "must be a positive finite number, got %v", priors.SigmaScale)
	}
	if min := MinLength(priors.MinGap); len(y) < min {
		return nil, gnss.Configf("min_gap", "series has %d points; a gap of %d needs at least %d", len(y), priors.MinGap, min)
	}

	m := &Model{
		y:          append([]float64(nil), y...),
		priors:     priors,
		cum:        make([]float64, len(y)+1),
		cumSq:      make([]float64, len(y)+1),
		muPrior:    distuv.Normal{Mu: 0, Sigma: priors.MeanScale},
		sigmaPrior: distuv.Normal{Mu: 0, Sigma: priors.SigmaScale},
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, gnss.DataFormatf("", "non-finite observation %v at index %d", v, i)
		}
		m.cum[i+1] = m.cum[i] + v
		m.cumSq[i+1] = m.cumSq[i] + v*v
	}
	return m, nil
}

// N returns the series length
func (m *Model) N() int { return len(m.y) }

// Priors returns the hyperparameters
func (m *Model) Priors() Priors { return m.priors }

// Observations returns a copy of the observed series
func (m *Model) Observations() []float64 { return append([]float64(nil), m.y...) }

// Tau1Range is the inclusive support of tau1
func (m *Model) Tau1Range() (lo, hi int) {
	return 0, m.N() - m.priors.MinGap - 2
}

// Tau2Range is the inclusive support of tau2 given tau1
func (m *Model) Tau2Range(tau1 int) (lo, hi int) {
	return tau1 + m.priors.MinGap + 1, m.N() - 1
}

// InSupport reports whether s has positive prior density
func (m *Model) InSupport(s State) bool {
	lo1, hi1 := m.Tau1Range()
	if s.Tau1 < lo1 || s.Tau1 > hi1 {
		return false
	}
	lo2, hi2 := m.Tau2Range(s.Tau1)
	if s.Tau2 < lo2 || s.Tau2 > hi2 {
		return false
	}
	return s.Sigma > 0 && !math.IsInf(s.Sigma, 1)
}

// Segment returns 0, 1 or 2 for the segment that time index t falls in
func Segment(t int, s State) int {
	switch {
	case t <= s.Tau1:
		return 0
	case t <= s.Tau2:
		return 1
	default:
		return 2
	}
}

// SegmentMean is the active mean at time index t
func SegmentMean(t int, s State) float64 {
	return s.Mu[Segment(t, s)]
}

// segmentBounds returns the half-open index ranges of the three segments
func (m *Model) segmentBounds(tau1, tau2 int) [3][2]int {
	return [3][2]int{{0, tau1 + 1}, {tau1 + 1, tau2 + 1}, {tau2 + 1, m.N()}}
}

// stats returns count, sum and sum of squares of y[lo:hi]
func (m *Model) stats(lo, hi int) (float64, float64, float64) {
	return float64(hi - lo), m.cum[hi] - m.cum[lo], m.cumSq[hi] - m.cumSq[lo]
}

// sse is the residual sum of squares of y[lo:hi] around mu
func (m *Model) sse(lo, hi int, mu float64) float64 {
	c, s, q := m.stats(lo, hi)
	r := q - 2*mu*s + c*mu*mu
	if r < 0 {
		// rounding in the prefix sums
		r = 0
	}
	return r
}

func (m *Model) totalSSE(s State) float64 {
	var total float64
	for k, b := range m.segmentBounds(s.Tau1, s.Tau2) {
		total += m.sse(b[0], b[1], s.Mu[k])
	}
	return total
}

// logTauPrior is log p(tau1) + log p(tau2 | tau1) for the nested uniforms
func (m *Model) logTauPrior(tau1 int) float64 {
	_, hi1 := m.Tau1Range()
	lo2, hi2 := m.Tau2Range(tau1)
	return -math.Log(float64(hi1+1)) - math.Log(float64(hi2-lo2+1))
}

// LogPrior is the log prior density of s, or -Inf outside the support
func (m *Model) LogPrior(s State) float64 {
	if !m.InSupport(s) {
		return math.Inf(-1)
	}
	lp := m.logTauPrior(s.Tau1)
	for _, mu := range s.Mu {
		lp += m.muPrior.LogProb(mu)
	}
	return lp + math.Ln2 + m.sigmaPrior.LogProb(s.Sigma)
}

// LogLikelihood is log p(y | s) under the Normal observation model
func (m *Model) LogLikelihood(s State) float64 {
	n := float64(m.N())
	return -n*math.Log(s.Sigma) - 0.5*n*math.Log(2*math.Pi) - m.totalSSE(s)/(2*s.Sigma*s.Sigma)
}

// LogPosterior returns the unnormalised log posterior of s. States outside
// the support give -Inf with no error; a non-finite value inside the support
// is a NumericalError.
func (m *Model) LogPosterior(s State) (float64, error) {
	lp := m.LogPrior(s)
	if math.IsInf(lp, -1) {
		return lp, nil
	}
	ll := m.LogLikelihood(s)
	v := lp + ll
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, &gnss.NumericalError{Msg: "log posterior is not finite"}
	}
	return v, nil
}

// segmentLogMarginal integrates the segment mean out of y[lo:hi] under its
// Normal prior, y ~ N(0, sigma2*I + v*11'). The -c/2*log(2*pi*sigma2) term is
// left out: summed over the three segments it only depends on n and sigma.
func (m *Model) segmentLogMarginal(lo, hi int, sigma2 float64) float64 {
	if hi <= lo {
		return 0
	}
	c, s, q := m.stats(lo, hi)
	v := m.priors.MeanScale * m.priors.MeanScale
	quad := q - v*s*s/(sigma2+c*v)
	if quad < 0 {
		quad = 0
	}
	return -0.5*math.Log1p(c*v/sigma2) - quad/(2*sigma2)
}

// logCollapsed is log p(tau1, tau2, y | sigma) with the means integrated out,
// up to a term constant in the changepoints
func (m *Model) logCollapsed(tau1, tau2 int, sigma2 float64) float64 {
	lp := m.logTauPrior(tau1)
	for _, b := range m.segmentBounds(tau1, tau2) {
		lp += m.segmentLogMarginal(b[0], b[1], sigma2)
	}
	return lp
}

// meanConditional returns the mean and standard deviation of the Normal full
// conditional of a segment mean
func (m *Model) meanConditional(lo, hi int, sigma2 float64) (float64, float64) {
	c, s, _ := m.stats(lo, hi)
	prec := 1/(m.priors.MeanScale*m.priors.MeanScale) + c/sigma2
	return (s / sigma2) / prec, math.Sqrt(1 / prec)
}

// logSigmaTarget is the log conditional density of log(sigma) given the rest
func (m *Model) logSigmaTarget(logSigma, sse float64) float64 {
	sigma := math.Exp(logSigma)
	n := float64(m.N())
	return -n*logSigma - sse/(2*sigma*sigma) + m.sigmaPrior.LogProb(sigma) + logSigma
}
