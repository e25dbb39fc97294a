package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chrissnell/gnsschange/internal/gnss"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *Config
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig reads the file over the defaults. Unknown keys are rejected.
func (y *YAMLProvider) LoadConfig() (*Config, error) {
	if y.config != nil {
		return y.config, nil
	}

	f, err := os.Open(y.filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	y.config = config
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML files
func (y *YAMLProvider) Close() error {
	return nil
}

// Decode reads YAML from r over the defaults. An empty document yields the
// defaults.
func Decode(r io.Reader) (*Config, error) {
	config := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, &gnss.ConfigurationError{Field: "config", Msg: err.Error()}
	}
	return config, nil
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	config, err := NewYAMLProvider(path).LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
