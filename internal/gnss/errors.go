package gnss

import (
	"encoding/json"
	"fmt"
	"math"
)

// ConfigurationError reports missing or invalid run parameters. It is raised
// before any sampling starts.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// Configf builds a ConfigurationError for field
func Configf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// DataFormatError reports input that is not a numeric three-axis table
type DataFormatError struct {
	Source string
	Msg    string
}

func (e *DataFormatError) Error() string {
	if e.Source == "" {
		return "data format error: " + e.Msg
	}
	return fmt.Sprintf("data format error: %s: %s", e.Source, e.Msg)
}

// DataFormatf builds a DataFormatError for source
func DataFormatf(source, format string, args ...interface{}) *DataFormatError {
	return &DataFormatError{Source: source, Msg: fmt.Sprintf(format, args...)}
}

// NumericalError is fatal for one axis only: the log density evaluated to a
// non-finite value.
type NumericalError struct {
	Axis Axis
	Msg  string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("numerical error on axis %s: %s", e.Axis, e.Msg)
}

// ConvergenceWarning flags poor mixing for one parameter. It never stops a run.
type ConvergenceWarning struct {
	Axis  Axis
	Param string
	RHat  float64
	ESS   float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("convergence warning on axis %s: %s has r_hat=%.3f ess=%.0f",
		w.Axis, w.Param, w.RHat, w.ESS)
}

// MarshalJSON writes non-finite statistics as null
func (w *ConvergenceWarning) MarshalJSON() ([]byte, error) {
	finite := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Axis    Axis     `json:"axis"`
		Param   string   `json:"param"`
		RHat    *float64 `json:"r_hat"`
		ESS     *float64 `json:"ess"`
		Message string   `json:"message"`
	}{w.Axis, w.Param, finite(w.RHat), finite(w.ESS), w.Error()})
}
