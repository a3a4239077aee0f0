package models

// PlotType selects the chart a variant-2 session renders.
type PlotType string

const (
	PlotDistribution PlotType = "distribution"
	PlotBar          PlotType = "bar"
	PlotScatter      PlotType = "scatterplot"
	PlotLine         PlotType = "line"
)

// PlotTypes lists every plot type in display order.
var PlotTypes = []PlotType{PlotDistribution, PlotBar, PlotScatter, PlotLine}

func (p PlotType) Valid() bool {
	switch p {
	case PlotDistribution, PlotBar, PlotScatter, PlotLine:
		return true
	}
	return false
}

// Variant is the dashboard flavour a session was opened with.
// Variant 1 only draws scatterplots; variant 2 lets the user pick a PlotType.
type Variant int

const (
	VariantScatter   Variant = 1
	VariantMultiPlot Variant = 2
)

func (v Variant) Valid() bool {
	return v == VariantScatter || v == VariantMultiPlot
}

type ColumnKind string

const (
	KindContinuous  ColumnKind = "continuous"
	KindCategorical ColumnKind = "categorical"
	KindTemporal    ColumnKind = "temporal"
)

type ColumnInfo struct {
	Name  string     `json:"name"`
	Title string     `json:"title"`
	Kind  ColumnKind `json:"kind"`
}

type DatasetInfo struct {
	Rows     int          `json:"rows"`
	Start    Day          `json:"start"`
	End      Day          `json:"end"`
	Response string       `json:"response"`
	Columns  []ColumnInfo `json:"columns"`
}

type Selection struct {
	X        string   `json:"x"`
	Y        string   `json:"y"`
	Start    Day      `json:"start"`
	End      Day      `json:"end"`
	PlotType PlotType `json:"plot_type"`
}

// Update is a partial Selection; nil fields are left untouched.
type Update struct {
	X        *string   `json:"x,omitempty" validate:"omitempty,min=1"`
	Y        *string   `json:"y,omitempty" validate:"omitempty,min=1"`
	Start    *Day      `json:"start,omitempty"`
	End      *Day      `json:"end,omitempty"`
	PlotType *PlotType `json:"plot_type,omitempty" validate:"omitempty,oneof=distribution bar scatterplot line"`
}

func (u Update) Empty() bool {
	return u.X == nil && u.Y == nil && u.Start == nil && u.End == nil && u.PlotType == nil
}

// --- CHART ---

type Mark string

const (
	MarkPoint Mark = "point"
	MarkBar   Mark = "bar"
	MarkLine  Mark = "line"
)

type Axis struct {
	Field string     `json:"field"`
	Title string     `json:"title"`
	Kind  ColumnKind `json:"kind"`
}

type ChartPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// ChartSpec is a declarative chart description, independent of any renderer.
type ChartSpec struct {
	PlotType PlotType     `json:"plot_type"`
	Mark     Mark         `json:"mark"`
	Title    string       `json:"title"`
	X        Axis         `json:"x"`
	Y        Axis         `json:"y"`
	Points   []ChartPoint `json:"points"`
	BinWidth float64      `json:"bin_width,omitempty"`
}

// --- SUMMARY ---

type SummaryStatus string

const (
	SummaryOK               SummaryStatus = "ok"
	SummaryInsufficientData SummaryStatus = "insufficient_data"
	SummaryNoData           SummaryStatus = "no_data"
)

type SummaryStats struct {
	Column string        `json:"column"`
	Count  int           `json:"count"`
	Status SummaryStatus `json:"status"`
	Min    Stat          `json:"min"`
	Max    Stat          `json:"max"`
	Mean   Stat          `json:"mean"`
	Median Stat          `json:"median"`
	StdDev Stat          `json:"std_dev"`
}

// Render is one published recomputation of a session.
type Render struct {
	SessionID  string       `json:"session_id"`
	Variant    Variant      `json:"variant"`
	Generation uint64       `json:"generation"`
	Selection  Selection    `json:"selection"`
	Rows       int          `json:"rows"`
	Chart      ChartSpec    `json:"chart"`
	Summary    SummaryStats `json:"summary"`
}

// --- OVERVIEW ---

type Overview struct {
	Response       string        `json:"response"`
	MonthlyRentals []MonthlyItem `json:"monthly_rentals"`
	SeasonTotals   []TotalItem   `json:"season_totals"`
	WeatherTotals  []TotalItem   `json:"weather_totals"`
}

type MonthlyItem struct {
	Month   string  `json:"month"`
	Rentals float64 `json:"rentals"`
}

type TotalItem struct {
	Name    string  `json:"name"`
	Rentals float64 `json:"rentals"`
	Days    int     `json:"days"`
}

// --- TABLE ---

type Row struct {
	Date   Day       `json:"date"`
	Values []float64 `json:"values"`
}

type RowPage struct {
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}
