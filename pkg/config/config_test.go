package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/gnss"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 2000, c.Detector.Sampler.Draws)
	assert.Equal(t, 1000, c.Detector.Sampler.Tune)
	assert.Equal(t, 4, c.Detector.Sampler.Chains)
	assert.Equal(t, 0.05, c.Detector.AlertThreshold)
	assert.Equal(t, 100, c.Detector.Priors.MinGap)
	assert.Equal(t, "output.png", c.Output.Prefix)
	assert.Equal(t, 1000, c.Simulation.NPoints)
}

func TestDecode(t *testing.T) {
	doc := `
data:
  path: coords.npy
detector:
  sampler:
    samples: 500
    chains: 2
  priors:
    min_gap: 50
  alert_threshold: 0.2
  parallel: true
output:
  prefix: station.png
  trace_dir: traces
server:
  read_timeout: 5s
logging:
  debug: true
`
	c, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "coords.npy", c.Data.Path)
	assert.Equal(t, 500, c.Detector.Sampler.Draws)
	assert.Equal(t, 2, c.Detector.Sampler.Chains)
	assert.Equal(t, 1000, c.Detector.Sampler.Tune, "unset keys keep their defaults")
	assert.Equal(t, 50, c.Detector.Priors.MinGap)
	assert.Equal(t, 1.0, c.Detector.Priors.MeanScale)
	assert.True(t, c.Detector.Parallel)
	assert.Equal(t, 5*time.Second, c.Server.ReadTimeout)
	assert.True(t, c.Logging.Debug)

	src, err := c.Source()
	require.NoError(t, err)
	assert.Equal(t, SourceFile, src)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("detector:\n  samplez: 10\n"))
	var ce *gnss.ConfigurationError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestDecodeEmpty(t *testing.T) {
	c, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestSource(t *testing.T) {
	pg := &dataset.PostgresSource{DSN: "postgres://localhost/gnss", Table: "positions", Station: "P1"}
	tests := []struct {
		name    string
		data    DataConfig
		want    Source
		wantErr bool
	}{
		{name: "none", wantErr: true},
		{name: "file", data: DataConfig{Path: "a.csv"}, want: SourceFile},
		{name: "simulate", data: DataConfig{Simulate: true}, want: SourceSimulate},
		{name: "postgres", data: DataConfig{Postgres: pg}, want: SourcePostgres},
		{name: "postgres without dsn", data: DataConfig{Postgres: &dataset.PostgresSource{}}, wantErr: true},
		{name: "file and simulate", data: DataConfig{Path: "a.csv", Simulate: true}, wantErr: true},
		{name: "file and postgres", data: DataConfig{Path: "a.csv", Postgres: pg}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Data = tt.data
			got, err := c.Source()
			if tt.wantErr {
				var ce *gnss.ConfigurationError
				assert.True(t, errors.As(err, &ce), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero samples", mutate: func(c *Config) { c.Detector.Sampler.Draws = 0 }},
		{name: "bad simulation", mutate: func(c *Config) {
			c.Data.Simulate = true
			c.Simulation.ChangePoints = []int{600, 300}
		}},
		{name: "postgres without station", mutate: func(c *Config) {
			c.Data.Postgres = &dataset.PostgresSource{DSN: "postgres://x", Table: "t"}
		}},
		{name: "postgres bad table", mutate: func(c *Config) {
			c.Data.Postgres = &dataset.PostgresSource{DSN: "postgres://x", Table: "t;--", Station: "s"}
		}},
		{name: "cert without key", mutate: func(c *Config) { c.Server.Cert = "server.crt" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			var ce *gnss.ConfigurationError
			assert.True(t, errors.As(c.Validate(), &ce))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("data:\n  simulate: true\n"), 0o644))
	c, err := Load(good)
	require.NoError(t, err)
	assert.True(t, c.Data.Simulate)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("detector:\n  sampler:\n    chains: 0\n"), 0o644))
	_, err = Load(bad)
	var ce *gnss.ConfigurationError
	assert.True(t, errors.As(err, &ce), "got %v", err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
