package detector

import (
	"math"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/gnss"
)

// DefaultAlertThreshold is the displacement, in data units, that raises an
// axis alert
const DefaultAlertThreshold = 0.05

// Config holds every inference setting of a run
type Config struct {
	Priors  changepoint.Priors        `yaml:"priors" json:"priors" msgpack:"priors"`
	Sampler changepoint.SamplerConfig `yaml:"sampler" json:"sampler" msgpack:"sampler"`
	Screen  changepoint.ScreenConfig  `yaml:"screen" json:"screen" msgpack:"screen"`

	// AlertThreshold flags an axis when |mu2-mu1| or |mu3-mu2| reaches it
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold" msgpack:"alert_threshold"`

	// Parallel samples the three axes concurrently
	Parallel bool `yaml:"parallel" json:"parallel" msgpack:"parallel"`

	MaxRHat float64 `yaml:"max_r_hat" json:"max_r_hat" msgpack:"max_r_hat"`
	MinESS  float64 `yaml:"min_ess" json:"min_ess" msgpack:"min_ess"`
}

// DefaultConfig returns the reference settings
func DefaultConfig() Config {
	return Config{
		Priors:         changepoint.DefaultPriors(),
		Sampler:        changepoint.DefaultSamplerConfig(),
		Screen:         changepoint.DefaultScreenConfig(),
		AlertThreshold: DefaultAlertThreshold,
		MaxRHat:        changepoint.DefaultMaxRHat,
		MinESS:         changepoint.DefaultMinESS,
	}
}

// Validate checks the settings that do not depend on the data
func (c Config) Validate() error {
	if err := c.Sampler.Validate(); err != nil {
		return err
	}
	p := c.Priors
	if p.MinGap < 1 {
		return gnss.Configf("min_gap", "must be >= 1, got %d", p.MinGap)
	}
	if !(p.MeanScale > 0) || math.IsInf(p.MeanScale, 0) {
		return gnss.Configf("prior_mean_scale", "must be a positive finite number, got %v", p.MeanScale)
	}
	if !(p.SigmaScale > 0) || math.IsInf(p.SigmaScale, 0) {
		return gnss.Configf("prior_sigma_scale", "must be a positive finite number, got %v", p.SigmaScale)
	}
	if !(c.AlertThreshold >= 0) || math.IsInf(c.AlertThreshold, 0) {
		return gnss.Configf("alert_threshold", "must be a non-negative finite number, got %v", c.AlertThreshold)
	}
	if !(c.MaxRHat >= 1) {
		return gnss.Configf("max_r_hat", "must be >= 1, got %v", c.MaxRHat)
	}
	if !(c.MinESS >= 0) {
		return gnss.Configf("min_ess", "must be >= 0, got %v", c.MinESS)
	}
	if !c.Screen.Disabled {
		if _, err := changepoint.NewCost(c.Screen.Cost); err != nil {
			return gnss.Configf("screen.cost", "%v", err)
		}
		if c.Screen.Kernel > 1 && c.Screen.Kernel%2 == 0 {
			return gnss.Configf("screen.kernel", "must be odd, got %d", c.Screen.Kernel)
		}
		if c.Screen.Penalty < 0 {
			return gnss.Configf("screen.penalty", "must be >= 0, got %v", c.Screen.Penalty)
		}
	}
	return nil
}
