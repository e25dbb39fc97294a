// Package report prints per-axis posterior summaries and renders one PNG per
// axis showing the series, the fitted segments and the sampler traces.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
)

// DefaultPrefix is the output prefix used when none is configured
const DefaultPrefix = "output.png"

// Stem drops a trailing .png from prefix so "output.png" yields output_X.png
func Stem(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.EqualFold(filepath.Ext(prefix), ".png") {
		return prefix[:len(prefix)-len(".png")]
	}
	return prefix
}

// OutputPath is the artifact path for one axis: {stem}_{axis}.png
func OutputPath(prefix string, a gnss.Axis) string {
	return fmt.Sprintf("%s_%s.png", Stem(prefix), a)
}

// WriteSummary prints the posterior summary of every axis
func WriteSummary(w io.Writer, r *detector.Report) error {
	ew := &errWriter{w: w}
	ew.printf("Changepoint summary (%d epochs, min gap %d, %d chains x %d draws)\n",
		r.N, r.Config.Priors.MinGap, r.Config.Sampler.Chains, r.Config.Sampler.Draws)

	for _, res := range r.Axes {
		ew.printf("\nAxis %s\n", res.Axis)
		if res.Err != nil || res.Summary == nil {
			msg := res.Error
			if res.Err != nil {
				msg = res.Err.Error()
			}
			ew.printf("  FAILED: %s\n", msg)
			continue
		}
		s := res.Summary
		ew.printf("  tau1   mean %6d   95%% HDI [%g, %g]\n", s.Tau1, s.Tau1HDI.Lo, s.Tau1HDI.Hi)
		ew.printf("  tau2   mean %6d   95%% HDI [%g, %g]\n", s.Tau2, s.Tau2HDI.Lo, s.Tau2HDI.Hi)
		for k := range s.Mu {
			ew.printf("  mu%d    mean %9.4f   95%% HDI [%.4f, %.4f]\n", k+1, s.Mu[k], s.MuHDI[k].Lo, s.MuHDI[k].Hi)
		}
		ew.printf("  sigma  mean %9.4f   95%% HDI [%.4f, %.4f]\n", s.Sigma, s.SigmaHDI.Lo, s.SigmaHDI.Hi)

		alert := ""
		if res.Alert {
			alert = fmt.Sprintf("   ALERT (threshold %g)", r.Config.AlertThreshold)
		}
		ew.printf("  displacement |mu2-mu1| %.4f  |mu3-mu2| %.4f%s\n", res.Displacements[0], res.Displacements[1], alert)

		if res.Diagnostics != nil {
			ew.printf("  convergence  max r_hat %.3f  min ess %.0f\n", res.Diagnostics.MaxRHat(), res.Diagnostics.MinESS())
		}
		for _, warn := range res.Warnings {
			ew.printf("  WARNING: %s\n", warn)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
