package engine

import (
	"sort"

	"bikedash/internal/models"
)

// View is a filtered subsequence of the store: the contiguous row range
// [lo, hi). Dates are sorted, so any date range maps to one range of rows
// and the view never copies data.
type View struct {
	store  *ColumnStore
	lo, hi int
}

// Full returns a view over every row.
func (cs *ColumnStore) Full() View {
	return View{store: cs, lo: 0, hi: len(cs.dates)}
}

// Filter returns the rows whose date lies in [start, end], inclusive.
// An inverted range (start > end) yields an empty view.
func (cs *ColumnStore) Filter(start, end models.Day) View {
	if start > end {
		return View{store: cs}
	}
	dates := cs.dates
	lo := sort.Search(len(dates), func(i int) bool { return dates[i] >= int32(start) })
	hi := sort.Search(len(dates), func(i int) bool { return dates[i] > int32(end) })
	return View{store: cs, lo: lo, hi: hi}
}

func (v View) Len() int { return v.hi - v.lo }

func (v View) Store() *ColumnStore { return v.store }

// Day returns the date of the i-th row of the view.
func (v View) Day(i int) models.Day {
	return models.Day(v.store.dates[v.lo+i])
}

// Values returns the named column restricted to the view. The slice
// aliases the store and must not be modified.
func (v View) Values(name string) ([]float64, error) {
	col, err := v.store.column(name)
	if err != nil {
		return nil, err
	}
	return col[v.lo:v.hi:v.hi], nil
}

// Rows pages through the view for tabular display. Columns are in store
// order without the date column, which is carried on each row.
func (v View) Rows(offset, limit int) models.RowPage {
	total := v.Len()
	if offset < 0 {
		offset = 0
	}
	page := models.RowPage{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Columns: v.store.ValueNames(),
		Rows:    make([]models.Row, 0),
	}
	if offset >= total || limit <= 0 {
		return page
	}
	end := offset + limit
	if end > total {
		end = total
	}

	for i := offset; i < end; i++ {
		row := models.Row{Date: v.Day(i), Values: make([]float64, 0, len(page.Columns))}
		for c, name := range v.store.names {
			if name == DateColumn {
				continue
			}
			row.Values = append(row.Values, v.store.values[c][v.lo+i])
		}
		page.Rows = append(page.Rows, row)
	}
	return page
}
