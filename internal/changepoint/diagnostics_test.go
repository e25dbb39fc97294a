package changepoint

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iidChains(m, n int, offsets []float64) [][]float64 {
	rng := rand.New(rand.NewPCG(11, 12))
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = rng.NormFloat64()
			if offsets != nil {
				out[i][j] += offsets[i]
			}
		}
	}
	return out
}

func ar1Chains(m, n int, phi float64) [][]float64 {
	rng := rand.New(rand.NewPCG(21, 22))
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, n)
		x := 0.0
		for j := range out[i] {
			x = phi*x + rng.NormFloat64()
			out[i][j] = x
		}
	}
	return out
}

func TestSplitRHat(t *testing.T) {
	assert.InDelta(t, 1.0, SplitRHat(iidChains(4, 1000, nil)), 0.02)
	assert.Greater(t, SplitRHat(iidChains(4, 1000, []float64{0, 0, 3, 3})), 1.5)
	assert.Equal(t, 1.0, SplitRHat([][]float64{{2, 2, 2, 2}, {2, 2, 2, 2}}))
	assert.True(t, math.IsInf(SplitRHat([][]float64{{1, 1, 1, 1}, {2, 2, 2, 2}}), 1))
	assert.True(t, math.IsNaN(SplitRHat([][]float64{{1, 2}})))
}

func TestEffectiveSampleSize(t *testing.T) {
	assert.InDelta(t, 4000, EffectiveSampleSize(iidChains(4, 1000, nil)), 800)

	// AR(1) with phi=0.9 has integrated autocorrelation time 19
	ess := EffectiveSampleSize(ar1Chains(4, 1000, 0.9))
	assert.Greater(t, ess, 80.0)
	assert.Less(t, ess, 600.0)

	assert.Equal(t, 8.0, EffectiveSampleSize([][]float64{{3, 3, 3, 3}, {3, 3, 3, 3}}))
	assert.Equal(t, 0.0, EffectiveSampleSize(nil))
}

func TestDiagnoseAndWarnings(t *testing.T) {
	d, err := Diagnose(fixedSet())
	require.NoError(t, err)
	require.Len(t, d.Params, len(ParamNames))

	// two draws per chain cannot be split
	assert.True(t, math.IsNaN(d.MaxRHat()))
	assert.Equal(t, 4.0, d.MinESS())

	warnings := d.Warnings(gnss.AxisY, DefaultMaxRHat, DefaultMinESS)
	require.Len(t, warnings, len(ParamNames))
	assert.Equal(t, gnss.AxisY, warnings[0].Axis)
	assert.Equal(t, "tau1", warnings[0].Param)
	assert.Contains(t, warnings[0].Error(), "axis Y")

	d = Diagnostics{Params: []ParamDiagnostics{
		{Param: "tau1", RHat: 1.01, ESS: 900},
		{Param: "sigma", RHat: 1.2, ESS: 900},
	}}
	assert.Equal(t, 1.2, d.MaxRHat())
	warnings = d.Warnings(gnss.AxisX, DefaultMaxRHat, DefaultMinESS)
	require.Len(t, warnings, 1)
	assert.Equal(t, "sigma", warnings[0].Param)
}

func TestParamDiagnosticsJSON(t *testing.T) {
	b, err := json.Marshal(ParamDiagnostics{Param: "tau1", RHat: math.NaN(), ESS: 412.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"param":"tau1","r_hat":null,"ess":412.5}`, string(b))

	b, err = json.Marshal(ParamDiagnostics{Param: "sigma", RHat: math.Inf(1), ESS: 8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"param":"sigma","r_hat":null,"ess":8}`, string(b))
}
