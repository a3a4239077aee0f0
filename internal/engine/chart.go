package engine

import (
	"bikedash/internal/models"
	"fmt"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram bin count for distribution charts.
const DefaultBins = 30

// countField is the y binding of charts that count rows instead of
// plotting a column.
const countField = "count"

var ErrInvalidPlotType = errors.New("invalid plot type")

func axisFor(cs *ColumnStore, name string) models.Axis {
	kind, _ := cs.Kind(name)
	return models.Axis{Field: name, Title: Title(name), Kind: kind}
}

func countAxis() models.Axis {
	return models.Axis{Field: countField, Title: "Days", Kind: models.KindContinuous}
}

// BuildChart maps a view and axis selection to a chart spec. It performs no
// inference: scatter plots every row, distribution bins x, bar counts
// distinct x values and line averages y per distinct x (per month when x is
// the date). Scatter and line bind the requested x and y; distribution and
// bar bind y to the synthetic "count" field.
func BuildChart(view View, x, y string, pt models.PlotType, bins int) (models.ChartSpec, error) {
	xs, err := view.Values(x)
	if err != nil {
		return models.ChartSpec{}, err
	}
	ys, err := view.Values(y)
	if err != nil {
		return models.ChartSpec{}, err
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	cs := view.Store()
	spec := models.ChartSpec{
		PlotType: pt,
		X:        axisFor(cs, x),
		Y:        axisFor(cs, y),
		Points:   make([]models.ChartPoint, 0),
	}

	switch pt {
	case models.PlotScatter:
		spec.Mark = models.MarkPoint
		spec.Title = fmt.Sprintf("%s vs %s", Title(y), Title(x))
		spec.Points = scatterPoints(x, xs, ys)
	case models.PlotDistribution:
		spec.Mark = models.MarkBar
		spec.Title = fmt.Sprintf("Distribution of %s", Title(x))
		spec.Y = countAxis()
		spec.Points, spec.BinWidth = histogram(xs, bins)
	case models.PlotBar:
		spec.Mark = models.MarkBar
		spec.Title = fmt.Sprintf("Days by %s", Title(x))
		spec.Y = countAxis()
		spec.Points = valueCounts(x, xs)
	case models.PlotLine:
		spec.Mark = models.MarkLine
		spec.Title = fmt.Sprintf("Mean %s by %s", Title(y), Title(x))
		spec.Points = trend(x, xs, ys)
	default:
		return models.ChartSpec{}, errors.Wrapf(ErrInvalidPlotType, "%q", pt)
	}
	return spec, nil
}

func scatterPoints(x string, xs, ys []float64) []models.ChartPoint {
	points := make([]models.ChartPoint, len(xs))
	for i := range xs {
		points[i] = models.ChartPoint{X: xs[i], Y: ys[i]}
		if x == DateColumn {
			points[i].Label = CategoryLabel(x, xs[i])
		}
	}
	return points
}

// histogram bins xs into equal-width bins spanning its range. Each point is
// a bin centre and its count.
func histogram(xs []float64, bins int) ([]models.ChartPoint, float64) {
	if len(xs) == 0 {
		return make([]models.ChartPoint, 0), 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]

	if lo == hi {
		return []models.ChartPoint{{X: lo, Y: float64(len(sorted))}}, 0
	}

	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram bins are half-open; widen the last edge to keep hi
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	width := (hi - lo) / float64(bins)
	points := make([]models.ChartPoint, bins)
	for i, c := range counts {
		points[i] = models.ChartPoint{X: lo + (float64(i)+0.5)*width, Y: c}
	}
	return points, width
}

func valueCounts(x string, xs []float64) []models.ChartPoint {
	counts := make(map[float64]int)
	for _, v := range xs {
		counts[v]++
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	points := make([]models.ChartPoint, len(keys))
	for i, k := range keys {
		points[i] = models.ChartPoint{X: k, Y: float64(counts[k]), Label: CategoryLabel(x, k)}
	}
	return points
}

type meanAcc struct {
	sum float64
	n   int
}

// trend averages ys per distinct xs value. Dates are grouped by calendar
// month and placed on the first day of that month.
func trend(x string, xs, ys []float64) []models.ChartPoint {
	groups := make(map[float64]*meanAcc)
	for i, v := range xs {
		key := v
		if x == DateColumn {
			key = float64(monthStart(models.Day(int32(v))))
		}
		acc, ok := groups[key]
		if !ok {
			acc = &meanAcc{}
			groups[key] = acc
		}
		acc.sum += ys[i]
		acc.n++
	}
	keys := make([]float64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	points := make([]models.ChartPoint, len(keys))
	for i, k := range keys {
		acc := groups[k]
		p := models.ChartPoint{X: k, Y: acc.sum / float64(acc.n)}
		if x == DateColumn {
			p.Label = models.Day(int32(k)).Time().Format("2006-01")
		} else {
			p.Label = CategoryLabel(x, k)
		}
		points[i] = p
	}
	return points
}

func monthStart(d models.Day) models.Day {
	t := d.Time()
	return models.DayOf(t.AddDate(0, 0, 1-t.Day()))
}
