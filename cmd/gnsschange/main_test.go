package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/simulate"
	"github.com/chrissnell/gnsschange/internal/store"
)

func TestRunSimulateEndToEnd(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "result.png")
	db := filepath.Join(dir, "runs.db")
	traces := filepath.Join(dir, "traces")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-simulate",
		"-n-points", "1000",
		"-change-points", "200,500,800",
		"-samples", "200",
		"-tune", "200",
		"-chains", "2",
		"-output", prefix,
		"-store", db,
		"-trace-dir", traces,
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	out := stdout.String()
	for _, axis := range []string{"X", "Y", "Z"} {
		assert.Contains(t, out, "Axis "+axis)

		png := filepath.Join(dir, "result_"+axis+".png")
		b, err := os.ReadFile(png)
		require.NoError(t, err, png)
		assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")), png)

		_, err = os.Stat(filepath.Join(traces, "result_"+axis+store.TraceExt))
		assert.NoError(t, err)
	}
	assert.Contains(t, out, "Run recorded as")

	s, err := store.Open(context.Background(), db, nil)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1000, runs[0].N)
}

func TestRunFromFile(t *testing.T) {
	dir := t.TempDir()
	p := simulate.DefaultParams()
	p.NPoints = 300
	p.ChangePoints = []int{100, 200}
	obs, err := simulate.Generate(p)
	require.NoError(t, err)
	data := filepath.Join(dir, "series.csv")
	require.NoError(t, dataset.Save(context.Background(), data, obs))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-data", data,
		"-min-gap", "30",
		"-samples", "100",
		"-tune", "100",
		"-chains", "2",
		"-parallel",
		"-output", filepath.Join(dir, "plot"),
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	for _, axis := range []string{"X", "Y", "Z"} {
		_, err := os.Stat(filepath.Join(dir, "plot_"+axis+".png"))
		assert.NoError(t, err)
	}
}

func TestRunConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "gnsschange.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
data:
  simulate: true
simulation:
  n_points: 240
  change_points: [80, 160]
  seed: 3
detector:
  priors:
    min_gap: 20
  sampler:
    samples: 50
    tune: 50
    chains: 2
`), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgFile,
		"-samples", "80",
		"-output", filepath.Join(dir, "cfg.png"),
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "cfg_Z.png")
}

func TestRunConfigFilePostgresOverride(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "gnsschange.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
data:
  postgres:
    dsn: postgres://a@127.0.0.1:1/gnss?sslmode=disable&connect_timeout=1
    table: coords
    station: ST01
`), 0o644))

	// Only the DSN changes; table and station still come from the file, so
	// the run gets as far as connecting
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgFile,
		"-pg-dsn", "postgres://b@127.0.0.1:1/gnss?sslmode=disable&connect_timeout=1",
		"-output", filepath.Join(dir, "pg.png"),
	}, &stdout, &stderr)
	assert.Equal(t, exitFailed, code, stderr.String())
	assert.NotContains(t, stderr.String(), "configuration error")
	assert.Contains(t, stderr.String(), "failed to ping database")

	stderr.Reset()
	code = run(context.Background(), []string{
		"-config", cfgFile,
		"-pg-table", "bad table",
	}, &stdout, &stderr)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr.String(), "pg-table")
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "series.parquet")
	require.NoError(t, os.WriteFile(unknown, []byte("x"), 0o644))

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"no source", []string{}, exitConfig},
		{"two sources", []string{"-simulate", "-data", unknown}, exitConfig},
		{"zero samples", []string{"-simulate", "-samples", "0"}, exitConfig},
		{"negative threshold", []string{"-simulate", "-alert-threshold", "-1"}, exitConfig},
		{"bad change points", []string{"-simulate", "-change-points", "a,b"}, exitConfig},
		{"unknown flag", []string{"-frobnicate"}, exitConfig},
		{"missing config", []string{"-config", filepath.Join(dir, "nope.yaml")}, exitConfig},
		{"unsupported format", []string{"-data", unknown}, exitFailed},
		{"missing file", []string{"-data", filepath.Join(dir, "missing.csv")}, exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, tt.code, code, stderr.String())
		})
	}
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "gnsschange "+version)
}
