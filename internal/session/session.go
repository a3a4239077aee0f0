// Package session owns per-user dashboard state.
//
// A Session keeps one Selection and recomputes its chart and summary on every
// change. Each change bumps a generation counter; a recomputation is only
// published if its generation is still the newest when it finishes, so
// subscribers never see a render for a superseded input (last writer wins).
package session

import (
	"sync"
	"time"

	"bikedash/internal/engine"
	"bikedash/internal/metrics"
	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrClosed     = errors.New("session closed")
	ErrSuperseded = errors.New("superseded by a newer update")
)

type Session struct {
	id      string
	variant models.Variant
	eng     *engine.Engine
	logger  zerolog.Logger
	metrics *metrics.Metrics
	buffer  int
	now     func() time.Time

	mu        sync.Mutex
	sel       models.Selection
	gen       uint64
	latest    models.Render
	published bool
	subs      map[uint64]chan models.Render
	nextSub   uint64
	closed    bool
	lastSeen  time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) Variant() models.Variant { return s.variant }

func (s *Session) Selection() models.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Generation is the number of inputs applied so far.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Latest returns the most recently published render.
func (s *Session) Latest() (models.Render, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.published
}

// View returns the filtered view behind the latest published render, or the
// current selection before anything has been published.
func (s *Session) View() engine.View {
	s.mu.Lock()
	sel := s.sel
	if s.published {
		sel = s.latest.Selection
	}
	s.mu.Unlock()
	return s.eng.View(sel)
}

// Touch marks the session as active without changing its state.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) SetX(name string) (models.Render, error) {
	return s.Apply(models.Update{X: &name})
}

func (s *Session) SetY(name string) (models.Render, error) {
	return s.Apply(models.Update{Y: &name})
}

// SetDateRange clamps both ends to the dataset span when the range overlaps
// it. start > end, or a range outside the span, renders an empty view.
func (s *Session) SetDateRange(start, end models.Day) (models.Render, error) {
	return s.Apply(models.Update{Start: &start, End: &end})
}

func (s *Session) SetPlotType(pt models.PlotType) (models.Render, error) {
	return s.Apply(models.Update{PlotType: &pt})
}

// Apply validates u against the current selection, applies it as one new
// generation and recomputes. Invalid updates leave the session untouched.
// If another update lands while this one is computing, the result is
// discarded and ErrSuperseded is returned.
func (s *Session) Apply(u models.Update) (models.Render, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Render{}, ErrClosed
	}
	next := s.sel
	if err := s.merge(&next, u); err != nil {
		s.mu.Unlock()
		return models.Render{}, err
	}
	s.sel = next
	s.gen++
	gen := s.gen
	s.lastSeen = s.now()
	s.mu.Unlock()

	return s.recompute(gen, next)
}

func (s *Session) merge(sel *models.Selection, u models.Update) error {
	if u.X != nil {
		if err := s.eng.CheckColumn(*u.X); err != nil {
			return err
		}
		sel.X = *u.X
	}
	if u.Y != nil {
		if err := s.eng.CheckColumn(*u.Y); err != nil {
			return err
		}
		sel.Y = *u.Y
	}
	if u.Start != nil {
		sel.Start = *u.Start
	}
	if u.End != nil {
		sel.End = *u.End
	}
	if u.Start != nil || u.End != nil {
		sel.Start, sel.End = clampRange(s.eng.Store(), sel.Start, sel.End)
	}
	if u.PlotType != nil {
		pt := *u.PlotType
		if !pt.Valid() {
			return errors.Wrapf(engine.ErrInvalidPlotType, "%q", pt)
		}
		if s.variant == models.VariantScatter && pt != models.PlotScatter {
			return errors.Wrapf(engine.ErrInvalidPlotType, "%q: this dashboard only draws scatterplots", pt)
		}
		sel.PlotType = pt
	}
	return nil
}

// clampRange trims a range that overlaps the dataset span to that span.
// A range lying wholly outside the span is kept as given so it filters to
// zero rows.
func clampRange(store *engine.ColumnStore, start, end models.Day) (models.Day, models.Day) {
	if start > store.End() || end < store.Start() {
		return start, end
	}
	return store.Clamp(start), store.Clamp(end)
}

func (s *Session) recompute(gen uint64, sel models.Selection) (models.Render, error) {
	start := time.Now()
	res, err := s.eng.Compute(sel)
	s.metrics.ObserveRecompute(time.Since(start))
	if err != nil {
		return models.Render{}, err
	}
	r := models.Render{
		SessionID:  s.id,
		Variant:    s.variant,
		Generation: gen,
		Selection:  sel,
		Rows:       res.Rows,
		Chart:      res.Chart,
		Summary:    res.Summary,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Render{}, ErrClosed
	}
	if gen != s.gen {
		s.metrics.Superseded()
		s.logger.Debug().Uint64("generation", gen).Uint64("latest", s.gen).Msg("discarding superseded render")
		return models.Render{}, errors.Wrapf(ErrSuperseded, "generation %d, latest %d", gen, s.gen)
	}
	s.latest = r
	s.published = true
	for _, ch := range s.subs {
		deliver(ch, r)
	}
	return r, nil
}

// deliver never blocks: a slow subscriber loses its oldest pending render,
// so the newest one always gets through.
func deliver(ch chan models.Render, r models.Render) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}

// Subscribe returns a channel of published renders, starting with the
// latest one. The channel is closed by cancel or when the session closes.
func (s *Session) Subscribe() (<-chan models.Render, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	ch := make(chan models.Render, s.buffer)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.published {
		ch <- s.latest
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	return true
}
