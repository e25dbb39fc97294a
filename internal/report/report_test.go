package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		prefix string
		axis   gnss.Axis
		want   string
	}{
		{prefix: "output.png", axis: gnss.AxisX, want: "output_X.png"},
		{prefix: "", axis: gnss.AxisY, want: "output_Y.png"},
		{prefix: "plots/station.PNG", axis: gnss.AxisZ, want: "plots/station_Z.png"},
		{prefix: "run1", axis: gnss.AxisX, want: "run1_X.png"},
		{prefix: "run1.svg", axis: gnss.AxisX, want: "run1.svg_X.png"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputPath(tt.prefix, tt.axis))
		})
	}
}

func smallResult() (detector.AxisResult, []float64) {
	y := make([]float64, 120)
	for i := range y {
		switch {
		case i < 40:
			y[i] = 0.01 * float64(i%3)
		case i < 80:
			y[i] = 1
		default:
			y[i] = -1
		}
	}
	var draws []changepoint.State
	for i := 0; i < 20; i++ {
		draws = append(draws, changepoint.State{Tau1: 39 + i%2, Tau2: 79, Mu: [3]float64{0.01, 1, -1}, Sigma: 0.05})
	}
	set := &changepoint.SampleSet{N: 120, MinGap: 10, Chains: []changepoint.Chain{{Draws: draws}, {Draws: draws}}}
	summary, err := changepoint.Summarize(set)
	if err != nil {
		panic(err)
	}
	diag, err := changepoint.Diagnose(set)
	if err != nil {
		panic(err)
	}
	return detector.AxisResult{
		Axis:          gnss.AxisY,
		Summary:       &summary,
		Diagnostics:   &diag,
		Set:           set,
		Displacements: summary.Displacements(),
		Alert:         true,
		Warnings:      diag.Warnings(gnss.AxisY, 1.05, 100),
	}, y
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestRenderAxis(t *testing.T) {
	res, y := smallResult()
	path := filepath.Join(t.TempDir(), "axis.png")
	require.NoError(t, RenderAxis(path, y, res))
	assertPNG(t, path)
}

func TestRenderFailedAxis(t *testing.T) {
	_, y := smallResult()
	res := detector.AxisResult{Axis: gnss.AxisZ, Err: &gnss.NumericalError{Axis: gnss.AxisZ, Msg: "log density is NaN"}}
	path := filepath.Join(t.TempDir(), "failed.png")
	require.NoError(t, RenderAxis(path, y, res))
	assertPNG(t, path)

	assert.Error(t, RenderAxis(path, nil, res))
}

func TestRenderReport(t *testing.T) {
	res, y := smallResult()
	obs, err := gnss.NewObservations(y, y, y)
	require.NoError(t, err)

	r := &detector.Report{N: len(y), Axes: []detector.AxisResult{res, res, res}}
	for i := range r.Axes {
		r.Axes[i].Axis = gnss.Axes[i]
	}

	prefix := filepath.Join(t.TempDir(), "output.png")
	paths, err := RenderReport(prefix, obs, r)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for i, p := range paths {
		assert.Equal(t, OutputPath(prefix, gnss.Axes[i]), p)
		assertPNG(t, p)
	}
}

func TestWriteSummary(t *testing.T) {
	res, _ := smallResult()
	failed := detector.AxisResult{Axis: gnss.AxisZ, Err: errors.New("numerical error on axis Z: boom")}
	r := &detector.Report{
		N:      120,
		Config: detector.DefaultConfig(),
		Axes:   []detector.AxisResult{res, failed},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "Axis Y")
	assert.Contains(t, out, "tau2   mean     79")
	assert.Contains(t, out, "ALERT (threshold 0.05)")
	assert.Contains(t, out, "WARNING: convergence warning on axis Y")
	assert.Contains(t, out, "Axis Z\n  FAILED: numerical error on axis Z: boom")
}
