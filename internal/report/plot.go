package report

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/chrissnell/gnsschange/internal/changepoint"
	"github.com/chrissnell/gnsschange/internal/detector"
	"github.com/chrissnell/gnsschange/internal/gnss"
)

var (
	seriesColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	fitColor    = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	tauColor    = color.RGBA{R: 30, G: 90, B: 200, A: 255}
)

// Image size of each rendered axis
var (
	Width  = 10 * vg.Inch
	Height = 10 * vg.Inch
)

// RenderReport writes one PNG per axis and returns the paths in X, Y, Z
// order. Failed axes get a series-only plot.
func RenderReport(prefix string, obs *gnss.Observations, r *detector.Report) ([]string, error) {
	paths := make([]string, 0, len(r.Axes))
	for _, res := range r.Axes {
		path := OutputPath(prefix, res.Axis)
		if err := RenderAxis(path, obs.Column(res.Axis), res); err != nil {
			return paths, fmt.Errorf("axis %s: %w", res.Axis, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderAxis draws the series with its fitted segments and changepoint
// markers, and below it the tau and mu traces of every chain
func RenderAxis(path string, y []float64, res detector.AxisResult) error {
	if len(y) == 0 {
		return fmt.Errorf("no observations to plot")
	}
	series, err := seriesPlot(y, res)
	if err != nil {
		return err
	}
	rows := [][]*plot.Plot{{series}}

	if res.Set != nil {
		taus, err := tracePlot(res.Set, []string{"tau1", "tau2"}, "changepoint traces", "index")
		if err != nil {
			return err
		}
		mus, err := tracePlot(res.Set, []string{"mu1", "mu2", "mu3"}, "segment mean traces", "mean")
		if err != nil {
			return err
		}
		rows = append(rows, []*plot.Plot{taus}, []*plot.Plot{mus})
	}

	img := vgimg.New(Width, Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(rows),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      2 * vg.Millimeter,
		PadTop:    2 * vg.Millimeter,
		PadBottom: 2 * vg.Millimeter,
		PadLeft:   2 * vg.Millimeter,
		PadRight:  4 * vg.Millimeter,
	}
	canvases := plot.Align(rows, tiles, dc)
	for i := range rows {
		rows[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func seriesPlot(y []float64, res detector.AxisResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Axis %s", res.Axis)
	if res.Err != nil {
		p.Title.Text += " (sampling failed)"
	}
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "displacement"

	pts := make(plotter.XYs, len(y))
	lo, hi := y[0], y[0]
	for t, v := range y {
		pts[t].X = float64(t)
		pts[t].Y = v
		lo, hi = min(lo, v), max(hi, v)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = seriesColor
	scatter.GlyphStyle.Radius = vg.Points(1)
	p.Add(scatter)

	if res.Summary == nil {
		return p, nil
	}
	s := res.Summary

	st := changepoint.State{Tau1: s.Tau1, Tau2: s.Tau2, Mu: s.Mu}
	fit := make(plotter.XYs, len(y))
	for t := range y {
		fit[t].X = float64(t)
		fit[t].Y = changepoint.SegmentMean(t, st)
	}
	fitLine, err := plotter.NewLine(fit)
	if err != nil {
		return nil, err
	}
	fitLine.LineStyle.Color = fitColor
	fitLine.LineStyle.Width = vg.Points(1.5)
	p.Add(fitLine)
	p.Legend.Add("posterior mean fit", fitLine)

	for i, tau := range []int{s.Tau1, s.Tau2} {
		marker, err := plotter.NewLine(plotter.XYs{{X: float64(tau), Y: lo}, {X: float64(tau), Y: hi}})
		if err != nil {
			return nil, err
		}
		marker.LineStyle.Color = tauColor
		marker.LineStyle.Width = vg.Points(1)
		marker.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(marker)
		if i == 0 {
			p.Legend.Add("changepoints", marker)
		}
	}
	p.Legend.Top = true
	return p, nil
}

func tracePlot(set *changepoint.SampleSet, params []string, title, ylabel string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "draw"
	p.Y.Label.Text = ylabel

	for pi, param := range params {
		chains, err := set.PerChain(param)
		if err != nil {
			return nil, err
		}
		for ci, values := range chains {
			pts := make(plotter.XYs, len(values))
			for i, v := range values {
				pts[i].X = float64(i)
				pts[i].Y = v
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.LineStyle.Color = plotutil.Color(pi)
			line.LineStyle.Width = vg.Points(0.5)
			line.LineStyle.Dashes = plotutil.Dashes(ci)
			p.Add(line)
			if ci == 0 {
				p.Legend.Add(param, line)
			}
		}
	}
	p.Legend.Top = true
	return p, nil
}
