package engine

import (
	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
)

// DateColumn is the canonical name of the date column.
const DateColumn = "dteday"

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrEmptyDataset  = errors.New("dataset has no rows")
)

// Column kinds of the UCI bike-sharing day table. Anything not listed here
// is treated as continuous.
var categoricalColumns = map[string]bool{
	"season":     true,
	"yr":         true,
	"mnth":       true,
	"holiday":    true,
	"weekday":    true,
	"workingday": true,
	"weathersit": true,
}

var columnTitles = map[string]string{
	DateColumn:   "Date",
	"instant":    "Record index",
	"season":     "Season",
	"yr":         "Year",
	"mnth":       "Month",
	"holiday":    "Holiday",
	"weekday":    "Weekday",
	"workingday": "Working day",
	"weathersit": "Weather situation",
	"temp":       "Temperature (normalized)",
	"atemp":      "Feels-like temperature (normalized)",
	"hum":        "Humidity (normalized)",
	"windspeed":  "Wind speed (normalized)",
	"casual":     "Casual rentals",
	"registered": "Registered rentals",
	"cnt":        "Total rentals",
}

// ColumnStore holds the dataset in Struct-of-Arrays format.
// It is built once and never mutated afterwards; slices handed out by
// View must be treated as read-only.
type ColumnStore struct {
	// Epoch days, strictly ascending
	dates []int32

	// Column order as in the source header, date column included
	names  []string
	kinds  []models.ColumnKind
	values [][]float64

	index map[string]int
}

// NewColumnStore assembles a store from a date column and named numeric
// columns. The date column is appended as a temporal column under DateColumn.
func NewColumnStore(dates []int32, names []string, cols [][]float64) (*ColumnStore, error) {
	if len(dates) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(names) != len(cols) {
		return nil, errors.Newf("got %d column names for %d columns", len(names), len(cols))
	}
	for i := 1; i < len(dates); i++ {
		if dates[i] <= dates[i-1] {
			return nil, errors.Newf("row %d: date %s is not after %s", i+1,
				models.Day(dates[i]), models.Day(dates[i-1]))
		}
	}

	cs := &ColumnStore{
		dates: dates,
		index: make(map[string]int, len(names)+1),
	}

	dateVals := make([]float64, len(dates))
	for i, d := range dates {
		dateVals[i] = float64(d)
	}
	cs.add(DateColumn, models.KindTemporal, dateVals)

	for i, name := range names {
		if name == DateColumn {
			continue
		}
		if _, dup := cs.index[name]; dup {
			return nil, errors.Newf("duplicate column %q", name)
		}
		if len(cols[i]) != len(dates) {
			return nil, errors.Newf("column %q has %d rows, want %d", name, len(cols[i]), len(dates))
		}
		kind := models.KindContinuous
		if categoricalColumns[name] {
			kind = models.KindCategorical
		}
		cs.add(name, kind, cols[i])
	}
	return cs, nil
}

func (cs *ColumnStore) add(name string, kind models.ColumnKind, vals []float64) {
	cs.index[name] = len(cs.names)
	cs.names = append(cs.names, name)
	cs.kinds = append(cs.kinds, kind)
	cs.values = append(cs.values, vals)
}

func (cs *ColumnStore) Len() int { return len(cs.dates) }

func (cs *ColumnStore) Start() models.Day { return models.Day(cs.dates[0]) }

func (cs *ColumnStore) End() models.Day { return models.Day(cs.dates[len(cs.dates)-1]) }

func (cs *ColumnStore) HasColumn(name string) bool {
	_, ok := cs.index[name]
	return ok
}

func (cs *ColumnStore) Kind(name string) (models.ColumnKind, bool) {
	i, ok := cs.index[name]
	if !ok {
		return "", false
	}
	return cs.kinds[i], true
}

// Names returns the column names in source order.
func (cs *ColumnStore) Names() []string {
	return append([]string(nil), cs.names...)
}

// ValueNames returns the numeric column names in source order, without the
// date column.
func (cs *ColumnStore) ValueNames() []string {
	out := make([]string, 0, len(cs.names)-1)
	for _, name := range cs.names {
		if name != DateColumn {
			out = append(out, name)
		}
	}
	return out
}

func (cs *ColumnStore) Columns() []models.ColumnInfo {
	out := make([]models.ColumnInfo, len(cs.names))
	for i, name := range cs.names {
		out[i] = models.ColumnInfo{Name: name, Title: Title(name), Kind: cs.kinds[i]}
	}
	return out
}

func (cs *ColumnStore) column(name string) ([]float64, error) {
	i, ok := cs.index[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "%q", name)
	}
	return cs.values[i], nil
}

// Clamp limits d to the observed date span.
func (cs *ColumnStore) Clamp(d models.Day) models.Day {
	if d < cs.Start() {
		return cs.Start()
	}
	if d > cs.End() {
		return cs.End()
	}
	return d
}

// Title returns the display title of a column.
func Title(name string) string {
	if t, ok := columnTitles[name]; ok {
		return t
	}
	return name
}
