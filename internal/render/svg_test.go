package render

import (
	"bytes"
	"testing"

	"bikedash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chart(pt models.PlotType, mark models.Mark, xKind models.ColumnKind, points ...models.ChartPoint) models.ChartSpec {
	return models.ChartSpec{
		PlotType: pt,
		Mark:     mark,
		Title:    "Total rentals vs Temperature",
		X:        models.Axis{Field: "temp", Title: "Temperature", Kind: xKind},
		Y:        models.Axis{Field: "cnt", Title: "Total rentals", Kind: models.KindContinuous},
		Points:   points,
		BinWidth: 0.1,
	}
}

func TestWriteSVG(t *testing.T) {
	pts := []models.ChartPoint{{X: 0.2, Y: 900, Label: "Spring"}, {X: 0.3, Y: 1200, Label: "Summer"}, {X: 0.4, Y: 1500, Label: "Fall"}}

	tests := []struct {
		name string
		spec models.ChartSpec
	}{
		{"scatter", chart(models.PlotScatter, models.MarkPoint, models.KindContinuous, pts...)},
		{"line", chart(models.PlotLine, models.MarkLine, models.KindContinuous, pts...)},
		{"bar", chart(models.PlotBar, models.MarkBar, models.KindCategorical, pts...)},
		{"distribution", chart(models.PlotDistribution, models.MarkBar, models.KindContinuous, pts...)},
		{"temporal line", chart(models.PlotLine, models.MarkLine, models.KindTemporal,
			models.ChartPoint{X: 14975, Y: 1000}, models.ChartPoint{X: 15006, Y: 1400})},
		{"empty", chart(models.PlotScatter, models.MarkPoint, models.KindContinuous)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSVG(&buf, tt.spec, DefaultWidth, DefaultHeight))
			out := buf.String()
			assert.Contains(t, out, "<svg")
			assert.Contains(t, out, "</svg>")
		})
	}
}

func TestPlotTitles(t *testing.T) {
	p, err := Plot(chart(models.PlotScatter, models.MarkPoint, models.KindContinuous, models.ChartPoint{X: 1, Y: 2}))
	require.NoError(t, err)
	assert.Equal(t, "Total rentals vs Temperature", p.Title.Text)
	assert.Equal(t, "Temperature", p.X.Label.Text)
	assert.Equal(t, "Total rentals", p.Y.Label.Text)

	p, err = Plot(chart(models.PlotScatter, models.MarkPoint, models.KindContinuous))
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "(no data)")
}

func TestPlotRejectsUnknownMark(t *testing.T) {
	_, err := Plot(chart(models.PlotScatter, models.Mark("area"), models.KindContinuous, models.ChartPoint{X: 1, Y: 2}))
	assert.Error(t, err)
}

func TestHistogramBins(t *testing.T) {
	spec := chart(models.PlotDistribution, models.MarkBar, models.KindContinuous,
		models.ChartPoint{X: 0.25, Y: 3}, models.ChartPoint{X: 0.35, Y: 5})
	h := histogram(spec)
	require.Len(t, h.Bins, 2)
	assert.InDelta(t, 0.2, h.Bins[0].Min, 1e-12)
	assert.InDelta(t, 0.3, h.Bins[0].Max, 1e-12)
	assert.Equal(t, 5.0, h.Bins[1].Weight)

	spec.BinWidth = 0
	h = histogram(spec)
	assert.Equal(t, 1.0, h.Width)
}
