// Package render draws chart specs with gonum/plot.
package render

import (
	"image/color"
	"io"

	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const secondsPerDay = 24 * 60 * 60

var (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch

	fill = color.RGBA{R: 0x4F, G: 0x46, B: 0xE5, A: 0xFF}
)

// Plot converts a chart spec into a gonum plot.
func Plot(spec models.ChartSpec) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.X.Title
	p.Y.Label.Text = spec.Y.Title
	p.Add(plotter.NewGrid())

	if len(spec.Points) == 0 {
		p.Title.Text += " (no data)"
		return p, nil
	}

	temporal := spec.X.Kind == models.KindTemporal
	if temporal {
		p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	}

	switch spec.Mark {
	case models.MarkPoint:
		s, err := plotter.NewScatter(xys(spec.Points, temporal))
		if err != nil {
			return nil, errors.Wrap(err, "scatter")
		}
		s.GlyphStyle.Color = fill
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)

	case models.MarkLine:
		l, err := plotter.NewLine(xys(spec.Points, temporal))
		if err != nil {
			return nil, errors.Wrap(err, "line")
		}
		l.LineStyle.Color = fill
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)

	case models.MarkBar:
		if spec.PlotType == models.PlotDistribution {
			p.Add(histogram(spec))
			break
		}
		vals := make(plotter.Values, len(spec.Points))
		labels := make([]string, len(spec.Points))
		for i, pt := range spec.Points {
			vals[i] = pt.Y
			labels[i] = pt.Label
		}
		bars, err := plotter.NewBarChart(vals, vg.Points(18))
		if err != nil {
			return nil, errors.Wrap(err, "bar chart")
		}
		bars.Color = fill
		bars.LineStyle.Width = 0
		p.Add(bars)
		p.NominalX(labels...)

	default:
		return nil, errors.Newf("unsupported mark %q", spec.Mark)
	}
	return p, nil
}

// WriteSVG renders spec as SVG into w.
func WriteSVG(w io.Writer, spec models.ChartSpec, width, height vg.Length) error {
	p, err := Plot(spec)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "svg")
	if err != nil {
		return errors.Wrap(err, "svg writer")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write svg")
	}
	return nil
}

func xys(points []models.ChartPoint, temporal bool) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, pt := range points {
		out[i].X = pt.X
		if temporal {
			// TimeTicks reads unix seconds, chart points carry epoch days
			out[i].X = pt.X * secondsPerDay
		}
		out[i].Y = pt.Y
	}
	return out
}

func histogram(spec models.ChartSpec) *plotter.Histogram {
	width := spec.BinWidth
	if width == 0 {
		width = 1
	}
	bins := make([]plotter.HistogramBin, len(spec.Points))
	for i, pt := range spec.Points {
		bins[i] = plotter.HistogramBin{Min: pt.X - width/2, Max: pt.X + width/2, Weight: pt.Y}
	}
	return &plotter.Histogram{
		Bins:      bins,
		Width:     width,
		FillColor: fill,
		LineStyle: plotter.DefaultLineStyle,
	}
}
