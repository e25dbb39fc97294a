// Package detector runs changepoint inference over the three axes of an
// observation table and collects per-axis results.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/gnss"
	"github.com/chrissnell/gnsschange/internal/metrics"
)

// AxisResult is the outcome for one axis. Err is set when sampling failed;
// the other axes of the run are unaffected.
type AxisResult struct {
	Axis gnss.Axis `json:"axis" msgpack:"axis"`
	Seed uint64    `json:"seed" msgpack:"seed"`

	Summary     *changepoint.Summary       `json:"summary,omitempty" msgpack:"summary,omitempty"`
	Diagnostics *changepoint.Diagnostics   `json:"diagnostics,omitempty" msgpack:"diagnostics,omitempty"`
	Warnings    []*gnss.ConvergenceWarning `json:"warnings,omitempty" msgpack:"warnings,omitempty"`

	// Breakpoints are the PELT segment ends used to seed the first chain
	Breakpoints []int `json:"screen_breakpoints,omitempty" msgpack:"screen_breakpoints,omitempty"`

	Displacements [2]float64 `json:"displacements" msgpack:"displacements"`
	Alert         bool       `json:"alert" msgpack:"alert"`

	Duration time.Duration `json:"duration" msgpack:"duration"`
	Error    string        `json:"error,omitempty" msgpack:"error,omitempty"`

	Set *changepoint.SampleSet `json:"-" msgpack:"-"`
	Err error                  `json:"-" msgpack:"-"`
}

// Report holds the results of one run in X, Y, Z order
type Report struct {
	N        int          `json:"n" msgpack:"n"`
	Config   Config       `json:"config" msgpack:"config"`
	Axes     []AxisResult `json:"axes" msgpack:"axes"`
	Started  time.Time    `json:"started" msgpack:"started"`
	Finished time.Time    `json:"finished" msgpack:"finished"`
}

// Axis returns the result for a, or nil
func (r *Report) Axis(a gnss.Axis) *AxisResult {
	for i := range r.Axes {
		if r.Axes[i].Axis == a {
			return &r.Axes[i]
		}
	}
	return nil
}

// Alerts lists the axes that raised a displacement alert
func (r *Report) Alerts() []gnss.Axis {
	var out []gnss.Axis
	for _, res := range r.Axes {
		if res.Alert {
			out = append(out, res.Axis)
		}
	}
	return out
}

// Err joins the per-axis failures, or returns nil when every axis succeeded
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Axes {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Detector runs the per-axis pipeline: screen, sample, diagnose, summarise
type Detector struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New validates cfg and returns a Detector
func New(cfg Config, logger *zap.SugaredLogger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// Config returns the detector settings
func (d *Detector) Config() Config { return d.cfg }

// Detect validates the table and builds every axis model before sampling any
// axis, then samples X, Y and Z. A NumericalError on one axis is recorded in
// that axis's result and the run continues.
func (d *Detector) Detect(ctx context.Context, obs *gnss.Observations) (*Report, error) {
	if obs == nil {
		return nil, gnss.DataFormatf("", "no observations")
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	var models [3]*changepoint.Model
	for _, a := range gnss.Axes {
		m, err := changepoint.NewModel(obs.Column(a), d.cfg.Priors)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", a, err)
		}
		models[a] = m
	}

	report := &Report{
		N:       obs.Len(),
		Config:  d.cfg,
		Axes:    make([]AxisResult, len(gnss.Axes)),
		Started: time.Now(),
	}

	if d.cfg.Parallel {
		// axis failures stay in their results, so no worker cancels another
		var wg sync.WaitGroup
		for _, a := range gnss.Axes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				report.Axes[a] = d.runAxis(ctx, a, models[a])
			}()
		}
		wg.Wait()
	} else {
		for _, a := range gnss.Axes {
			report.Axes[a] = d.runAxis(ctx, a, models[a])
		}
	}
	report.Finished = time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.ObserveRun(report.Err() == nil)
	return report, nil
}

func (d *Detector) runAxis(ctx context.Context, a gnss.Axis, m *changepoint.Model) AxisResult {
	start := time.Now()
	res := AxisResult{Axis: a, Seed: AxisSeed(d.cfg.Sampler.Seed, m.Observations())}
	logger := d.logger.With("axis", a.String())

	fail := func(err error, outcome string) AxisResult {
		var ne *gnss.NumericalError
		if errors.As(err, &ne) {
			ne.Axis = a
			outcome = metrics.OutcomeNumerical
		}
		res.Err = err
		res.Error = err.Error()
		res.Duration = time.Since(start)
		metrics.ObserveAxis(a.String(), outcome, res.Duration)
		logger.Errorw("axis failed", "error", err)
		return res
	}

	var init *changepoint.State
	if !d.cfg.Screen.Disabled {
		st, bkps, ok, err := m.InitialState(d.cfg.Screen)
		if err != nil {
			return fail(fmt.Errorf("screen: %w", err), metrics.OutcomeFailed)
		}
		res.Breakpoints = bkps
		if ok {
			init = &st
			logger.Debugw("screen found initial changepoints", "tau1", st.Tau1, "tau2", st.Tau2)
		} else {
			logger.Debugw("screen found no admissible changepoint pair", "breakpoints", bkps)
		}
	}

	scfg := d.cfg.Sampler
	scfg.Seed = res.Seed
	sampler, err := changepoint.NewSampler(scfg, logger)
	if err != nil {
		return fail(err, metrics.OutcomeFailed)
	}

	logger.Infow("sampling", "draws", scfg.Draws, "tune", scfg.Tune, "chains", scfg.Chains, "n", m.N())
	set, err := sampler.Sample(ctx, m, init)
	if err != nil {
		if ctx.Err() != nil {
			return fail(err, metrics.OutcomeCanceled)
		}
		return fail(err, metrics.OutcomeFailed)
	}
	res.Set = set

	summary, err := changepoint.Summarize(set)
	if err != nil {
		return fail(err, metrics.OutcomeFailed)
	}
	diag, err := changepoint.Diagnose(set)
	if err != nil {
		return fail(err, metrics.OutcomeFailed)
	}
	res.Summary = &summary
	res.Diagnostics = &diag
	res.Warnings = diag.Warnings(a, d.cfg.MaxRHat, d.cfg.MinESS)

	res.Displacements = summary.Displacements()
	for _, disp := range res.Displacements {
		if disp >= d.cfg.AlertThreshold {
			res.Alert = true
		}
	}

	res.Duration = time.Since(start)

	warned := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warned = append(warned, w.Param)
		logger.Warnw("poor convergence", "param", w.Param, "r_hat", w.RHat, "ess", w.ESS)
	}
	metrics.ObserveDiagnostics(a.String(), diag.MaxRHat(), warned)
	metrics.ObserveAxis(a.String(), metrics.OutcomeOK, res.Duration)
	if res.Alert {
		metrics.ObserveAlert(a.String())
		logger.Warnw("displacement alert", "displacements", res.Displacements, "threshold", d.cfg.AlertThreshold)
	}

	logger.Infow("axis done",
		"tau1", summary.Tau1, "tau2", summary.Tau2,
		"mu", summary.Mu, "sigma", summary.Sigma,
		"max_r_hat", diag.MaxRHat(), "min_ess", diag.MinESS(),
		"duration", res.Duration)
	return res
}
