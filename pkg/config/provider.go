// Package config defines the gnsschange configuration file, its defaults and
// validation.
package config

import (
	"time"

	"github.com/chrissnell/gnsschange/internal/dataset"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/internal/report"
	"github.com/chrissnell/gnsschange/internal/simulate"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*Config, error)

	IsReadOnly() bool
	Close() error
}

// Config represents the complete configuration structure
type Config struct {
	Data       DataConfig      `yaml:"data"`
	Simulation simulate.Params `yaml:"simulation"`
	Detector   detector.Config `yaml:"detector"`
	Output     OutputConfig    `yaml:"output"`
	Server     ServerConfig    `yaml:"server"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// DataConfig selects where observations come from. Exactly one of Path,
// Simulate and Postgres must be set for a CLI run.
type DataConfig struct {
	Path     string                  `yaml:"path,omitempty"`
	Simulate bool                    `yaml:"simulate,omitempty"`
	Postgres *dataset.PostgresSource `yaml:"postgres,omitempty"`
}

// OutputConfig holds the locations of run artifacts
type OutputConfig struct {
	// Prefix names the per-axis plots {stem}_{axis}.png
	Prefix   string `yaml:"prefix"`
	TraceDir string `yaml:"trace_dir,omitempty"`
	Store    string `yaml:"store,omitempty"`
}

// ServerConfig holds the REST API settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr,omitempty"`
	Port         int           `yaml:"port"`
	Cert         string        `yaml:"cert,omitempty"`
	Key          string        `yaml:"key,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxPoints bounds the series length accepted by POST /api/v1/runs
	MaxPoints int `yaml:"max_points"`
}

// LoggingConfig controls the zap logger and optional rotated log file
type LoggingConfig struct {
	Debug      bool   `yaml:"debug"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// Source identifies the configured data source
type Source int

const (
	SourceNone Source = iota
	SourceFile
	SourceSimulate
	SourcePostgres
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceSimulate:
		return "simulate"
	case SourcePostgres:
		return "postgres"
	default:
		return "none"
	}
}

// Default returns the reference configuration
func Default() *Config {
	return &Config{
		Simulation: simulate.DefaultParams(),
		Detector:   detector.DefaultConfig(),
		Output: OutputConfig{
			Prefix: report.DefaultPrefix,
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			MaxPoints:    100000,
		},
	}
}

// Source returns the single configured data source
func (c *Config) Source() (Source, error) {
	var set []Source
	if c.Data.Path != "" {
		set = append(set, SourceFile)
	}
	if c.Data.Simulate {
		set = append(set, SourceSimulate)
	}
	if c.Data.Postgres != nil && c.Data.Postgres.DSN != "" {
		set = append(set, SourcePostgres)
	}
	switch len(set) {
	case 0:
		return SourceNone, gnss.Configf("data", "one of a data path, simulate or a postgres DSN is required")
	case 1:
		return set[0], nil
	default:
		return SourceNone, gnss.Configf("data", "data sources %v are mutually exclusive", set)
	}
}

// Validate checks the run settings. It does not require a data source; use
// Source for that.
func (c *Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Data.Simulate {
		if err := c.Simulation.Validate(); err != nil {
			return err
		}
	}
	if pg := c.Data.Postgres; pg != nil && pg.DSN != "" {
		if pg.Station == "" {
			return gnss.Configf("pg-station", "station name is required")
		}
		if _, err := pg.Query(); err != nil {
			return err
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return gnss.Configf("server.port", "out of range: %d", c.Server.Port)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return gnss.Configf("server.cert", "cert and key must be set together")
	}
	if c.Server.MaxPoints < 0 {
		return gnss.Configf("server.max_points", "must be >= 0, got %d", c.Server.MaxPoints)
	}
	return nil
}
