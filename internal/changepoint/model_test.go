package changepoint

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat/distuv"
)

func series(n int) []float64 {
	y := make([]float64, n)
	for i := range y {
		y[i] = math.Sin(float64(i))
	}
	return y
}

func TestNewModelLengthBoundary(t *testing.T) {
	const gap = 30
	priors := Priors{MeanScale: 1, SigmaScale: 1, MinGap: gap}

	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{name: "well below", n: gap, wantErr: true},
		{name: "just below twice the gap", n: 2*gap - 1, wantErr: true},
		{name: "twice the gap", n: 2 * gap, wantErr: true},
		{name: "minimum viable", n: 2*gap + 1},
		{name: "comfortable", n: 10 * gap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(series(tt.n), priors)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.n, m.N())
				return
			}
			var ce *gnss.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.True(t, strings.Contains(err.Error(), "61"), "message should name the minimum length: %v", err)
		})
	}
}

func TestNewModelInvalidPriors(t *testing.T) {
	y := series(50)
	for _, p := range []Priors{
		{MeanScale: 0, SigmaScale: 1, MinGap: 5},
		{MeanScale: 1, SigmaScale: -1, MinGap: 5},
		{MeanScale: math.Inf(1), SigmaScale: 1, MinGap: 5},
		{MeanScale: 1, SigmaScale: 1, MinGap: -1},
		{MeanScale: 1, SigmaScale: 1, MinGap: 0},
	} {
		_, err := NewModel(y, p)
		var ce *gnss.ConfigurationError
		assert.True(t, errors.As(err, &ce), "priors %+v", p)
	}
}

func TestNewModelRejectsNonFinite(t *testing.T) {
	y := series(50)
	y[10] = math.NaN()
	_, err := NewModel(y, Priors{MeanScale: 1, SigmaScale: 1, MinGap: 5})
	var dfe *gnss.DataFormatError
	assert.True(t, errors.As(err, &dfe))
}

func TestSupport(t *testing.T) {
	m, err := NewModel(series(21), Priors{MeanScale: 1, SigmaScale: 1, MinGap: 10})
	require.NoError(t, err)

	lo1, hi1 := m.Tau1Range()
	assert.Equal(t, 0, lo1)
	assert.Equal(t, 9, hi1)

	lo2, hi2 := m.Tau2Range(hi1)
	assert.Equal(t, 20, lo2)
	assert.Equal(t, 20, hi2)

	// every tau pair in the support keeps tau2 > tau1 + gap
	for t1 := lo1; t1 <= hi1; t1++ {
		lo, hi := m.Tau2Range(t1)
		require.LessOrEqual(t, lo, hi)
		for t2 := lo; t2 <= hi; t2++ {
			assert.Greater(t, t2, t1+10)
		}
	}

	assert.True(t, m.InSupport(State{Tau1: 0, Tau2: 11, Sigma: 1}))
	assert.False(t, m.InSupport(State{Tau1: 0, Tau2: 10, Sigma: 1}))
	assert.False(t, m.InSupport(State{Tau1: 5, Tau2: 21, Sigma: 1}))
	assert.False(t, m.InSupport(State{Tau1: 0, Tau2: 15, Sigma: 0}))

	lp, err := m.LogPosterior(State{Tau1: 3, Tau2: 4, Sigma: 1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(lp, -1))
}

func TestSegmentMean(t *testing.T) {
	s := State{Tau1: 2, Tau2: 5, Mu: [3]float64{10, 20, 30}}
	want := []float64{10, 10, 10, 20, 20, 20, 30, 30}
	for i, w := range want {
		assert.Equal(t, w, SegmentMean(i, s), "t=%d", i)
	}
}

func TestLogLikelihoodMatchesDirectSum(t *testing.T) {
	y := series(40)
	m, err := NewModel(y, Priors{MeanScale: 1, SigmaScale: 1, MinGap: 5})
	require.NoError(t, err)

	s := State{Tau1: 10, Tau2: 25, Mu: [3]float64{0.1, -0.3, 0.4}, Sigma: 0.8}
	var want float64
	for i, v := range y {
		want += distuv.Normal{Mu: SegmentMean(i, s), Sigma: s.Sigma}.LogProb(v)
	}
	assert.InDelta(t, want, m.LogLikelihood(s), 1e-9)

	lp, err := m.LogPosterior(s)
	require.NoError(t, err)
	assert.InDelta(t, want+m.LogPrior(s), lp, 1e-9)
}

func TestSegmentLogMarginalMatchesIntegral(t *testing.T) {
	y := []float64{0.4, 1.1, 0.7, 0.9}
	m, err := NewModel(y, Priors{MeanScale: 1.5, SigmaScale: 1, MinGap: 1})
	require.NoError(t, err)

	const sigma = 0.6
	prior := distuv.Normal{Mu: 0, Sigma: 1.5}

	xs := make([]float64, 20001)
	fs := make([]float64, len(xs))
	for i := range xs {
		mu := -10 + 20*float64(i)/float64(len(xs)-1)
		ll := prior.LogProb(mu)
		for _, v := range y {
			ll += distuv.Normal{Mu: mu, Sigma: sigma}.LogProb(v)
		}
		xs[i], fs[i] = mu, math.Exp(ll)
	}
	want := math.Log(integrate.Trapezoidal(xs, fs))

	got := m.segmentLogMarginal(0, len(y), sigma*sigma) - 0.5*float64(len(y))*math.Log(2*math.Pi*sigma*sigma)
	assert.InDelta(t, want, got, 1e-6)
}

func TestMinLength(t *testing.T) {
	assert.Equal(t, 3, MinLength(1))
	assert.Equal(t, 601, MinLength(300))
}

func TestSmallestGapBoundary(t *testing.T) {
	p := Priors{MeanScale: 1, SigmaScale: 1, MinGap: 1}

	m, err := NewModel([]float64{0.1, 0.5, 0.9}, p)
	require.NoError(t, err)
	lo1, hi1 := m.Tau1Range()
	assert.Equal(t, 0, lo1)
	assert.Equal(t, 0, hi1)
	lo2, hi2 := m.Tau2Range(0)
	assert.Equal(t, 2, lo2)
	assert.Equal(t, 2, hi2)

	_, err = NewModel([]float64{0.1, 0.5}, p)
	var ce *gnss.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}
