package changepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHDI(t *testing.T) {
	uniform := make([]float64, 100)
	for i := range uniform {
		uniform[i] = float64(i + 1)
	}

	tests := []struct {
		name   string
		values []float64
		mass   float64
		want   Interval
	}{
		{name: "uniform takes the lowest window", values: uniform, mass: 0.95, want: Interval{Lo: 1, Hi: 95}},
		{name: "single point", values: []float64{7, 7, 7, 7}, mass: 0.95, want: Interval{Lo: 7, Hi: 7}},
		{
			name: "skips a sparse tail",
			values: []float64{
				0, 50, 51, 51, 52, 52, 52, 53, 53, 54,
				50, 51, 51, 52, 52, 52, 53, 53, 54, 52,
			},
			mass: 0.95,
			want: Interval{Lo: 50, Hi: 54},
		},
		{name: "whole range at full mass", values: []float64{3, 1, 2}, mass: 1, want: Interval{Lo: 1, Hi: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HDI(tt.values, tt.mass))
		})
	}
}

func TestHDINarrowerThanPercentileOnSkew(t *testing.T) {
	// a mass at 10 plus a long right tail
	var values []float64
	for i := 0; i < 900; i++ {
		values = append(values, 10)
	}
	for i := 0; i < 100; i++ {
		values = append(values, 10+float64(i))
	}
	hdi := HDI(values, 0.95)
	assert.Equal(t, 10.0, hdi.Lo)
	assert.Equal(t, 59.0, hdi.Hi)
}

func TestHDIDoesNotModifyInput(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	HDI(values, 0.5)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
}

func fixedSet() *SampleSet {
	return &SampleSet{
		N:      100,
		MinGap: 10,
		Chains: []Chain{
			{Draws: []State{
				{Tau1: 30, Tau2: 60, Mu: [3]float64{0, 1, -1}, Sigma: 0.5},
				{Tau1: 31, Tau2: 61, Mu: [3]float64{0.1, 1.1, -0.9}, Sigma: 0.6},
			}},
			{Draws: []State{
				{Tau1: 30, Tau2: 62, Mu: [3]float64{-0.1, 0.9, -1.1}, Sigma: 0.4},
				{Tau1: 32, Tau2: 60, Mu: [3]float64{0, 1, -1}, Sigma: 0.5},
			}},
		},
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(fixedSet())
	require.NoError(t, err)

	assert.Equal(t, 4, s.Draws)
	assert.InDelta(t, 30.75, s.Tau1Mean, 1e-12)
	assert.Equal(t, 31, s.Tau1)
	assert.InDelta(t, 60.75, s.Tau2Mean, 1e-12)
	assert.Equal(t, 61, s.Tau2)
	assert.Equal(t, Interval{Lo: 30, Hi: 32}, s.Tau1HDI)
	assert.InDelta(t, 0.0, s.Mu[0], 1e-12)
	assert.InDelta(t, 1.0, s.Mu[1], 1e-12)
	assert.InDelta(t, -1.0, s.Mu[2], 1e-12)
	assert.InDelta(t, 0.5, s.Sigma, 1e-12)

	d := s.Displacements()
	assert.InDelta(t, 1.0, d[0], 1e-12)
	assert.InDelta(t, 2.0, d[1], 1e-12)
}

func TestSummarizeIdempotent(t *testing.T) {
	set := fixedSet()
	a, err := Summarize(set)
	require.NoError(t, err)
	b, err := Summarize(set)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, fixedSet(), set)
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize(&SampleSet{})
	assert.ErrorIs(t, err, ErrEmptySampleSet)
	_, err = Summarize(nil)
	assert.ErrorIs(t, err, ErrEmptySampleSet)
}
