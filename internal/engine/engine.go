package engine

import (
	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	response string
	bins     int
	defaultX string
	defaultY string
}

// WithResponse sets the column summarized for every view.
func WithResponse(column string) Option {
	return func(c *config) { c.response = column }
}

// WithBins sets the histogram bin count of distribution charts.
func WithBins(n int) Option {
	return func(c *config) { c.bins = n }
}

// WithDefaultAxes sets the axes new sessions start with.
func WithDefaultAxes(x, y string) Option {
	return func(c *config) {
		c.defaultX = x
		c.defaultY = y
	}
}

// Engine derives views, charts and summaries from one immutable store.
// It holds no per-session state and is safe to share across sessions.
type Engine struct {
	store *ColumnStore
	cfg   config
}

// Result is one recomputation for a selection.
type Result struct {
	Rows    int
	Chart   models.ChartSpec
	Summary models.SummaryStats
}

func New(store *ColumnStore, opts ...Option) (*Engine, error) {
	cfg := config{response: "cnt", bins: DefaultBins, defaultX: "temp", defaultY: "cnt"}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, col := range []string{cfg.response, cfg.defaultX, cfg.defaultY} {
		if !store.HasColumn(col) {
			return nil, errors.Wrapf(ErrUnknownColumn, "%q is configured but not in the dataset", col)
		}
	}
	if cfg.bins <= 0 {
		return nil, errors.Newf("histogram bins must be positive, got %d", cfg.bins)
	}
	return &Engine{store: store, cfg: cfg}, nil
}

func (e *Engine) Store() *ColumnStore { return e.store }

func (e *Engine) Response() string { return e.cfg.response }

func (e *Engine) Info() models.DatasetInfo {
	return models.DatasetInfo{
		Rows:     e.store.Len(),
		Start:    e.store.Start(),
		End:      e.store.End(),
		Response: e.cfg.response,
		Columns:  e.store.Columns(),
	}
}

// DefaultSelection is the state a new session starts in: default axes,
// the whole date span and a scatterplot.
func (e *Engine) DefaultSelection() models.Selection {
	return models.Selection{
		X:        e.cfg.defaultX,
		Y:        e.cfg.defaultY,
		Start:    e.store.Start(),
		End:      e.store.End(),
		PlotType: models.PlotScatter,
	}
}

func (e *Engine) CheckColumn(name string) error {
	if !e.store.HasColumn(name) {
		return errors.Wrapf(ErrUnknownColumn, "%q", name)
	}
	return nil
}

// View returns the filtered view of a selection.
func (e *Engine) View(sel models.Selection) View {
	return e.store.Filter(sel.Start, sel.End)
}

// Compute filters the dataset and builds the chart and summary for sel.
// It is a pure function of the store and sel.
func (e *Engine) Compute(sel models.Selection) (Result, error) {
	view := e.View(sel)
	chart, err := BuildChart(view, sel.X, sel.Y, sel.PlotType, e.cfg.bins)
	if err != nil {
		return Result{}, err
	}
	summary, err := Summarize(view, e.cfg.response)
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: view.Len(), Chart: chart, Summary: summary}, nil
}
