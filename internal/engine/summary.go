package engine

import (
	"bikedash/internal/models"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summarize computes min, max, mean, median and sample standard deviation
// of column over the view.
//
// An empty view reports SummaryNoData with every statistic undefined. A
// single row reports SummaryInsufficientData: the location statistics are
// that row's value and the standard deviation (n-1 denominator) is undefined.
func Summarize(view View, column string) (models.SummaryStats, error) {
	vals, err := view.Values(column)
	if err != nil {
		return models.SummaryStats{}, err
	}

	s := models.SummaryStats{Column: column, Count: len(vals), Status: models.SummaryNoData}
	if len(vals) == 0 {
		return s, nil
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	s.Min = models.Known(sorted[0])
	s.Max = models.Known(sorted[len(sorted)-1])
	s.Mean = models.Known(stat.Mean(sorted, nil))
	s.Median = models.Known(median(sorted))

	if len(sorted) == 1 {
		s.Status = models.SummaryInsufficientData
		return s, nil
	}
	s.StdDev = models.Known(stat.StdDev(sorted, nil))
	s.Status = models.SummaryOK
	return s, nil
}

// median of an already sorted, non-empty slice; even lengths average the
// two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
