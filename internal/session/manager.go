package session

import (
	"context"
	"sync"
	"time"

	"bikedash/internal/engine"
	"bikedash/internal/logging"
	"bikedash/internal/metrics"
	"bikedash/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidVariant = errors.New("invalid dashboard variant")

type Config struct {
	IdleTTL          time.Duration
	SweepInterval    time.Duration
	SubscriberBuffer int
}

func (c Config) withDefaults() Config {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 4
	}
	return c
}

// Manager creates, looks up and expires sessions. Sessions share the
// engine (and its read-only store) but nothing else.
type Manager struct {
	eng     *engine.Engine
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(eng *engine.Engine, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		eng:      eng,
		cfg:      cfg.withDefaults(),
		logger:   logging.Component(logger, "session.manager"),
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session in the engine's default selection and returns it
// with its first render.
func (m *Manager) Create(variant models.Variant) (*Session, models.Render, error) {
	if !variant.Valid() {
		return nil, models.Render{}, errors.Wrapf(ErrInvalidVariant, "%d", variant)
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		variant:  variant,
		eng:      m.eng,
		logger:   m.logger.With().Str("session_id", id).Logger(),
		metrics:  m.metrics,
		buffer:   m.cfg.SubscriberBuffer,
		now:      m.now,
		sel:      m.eng.DefaultSelection(),
		subs:     make(map[uint64]chan models.Render),
		lastSeen: m.now(),
	}
	r, err := s.Apply(models.Update{})
	if err != nil {
		return nil, models.Render{}, errors.Wrap(err, "initial render")
	}

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.Info().Str("session_id", id).Int("variant", int(variant)).Int("sessions", count).Msg("session created")
	return s, r, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", id)
	}
	return s, nil
}

func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", id)
	}
	if s.close() {
		m.metrics.SessionClosed()
	}
	m.logger.Info().Str("session_id", id).Msg("session closed")
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the TTL and reports how many
// it closed.
func (m *Manager) Sweep() int {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleFor(now) > m.cfg.IdleTTL {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if s.close() {
			m.metrics.SessionClosed()
		}
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Msg("swept idle sessions")
	}
	return len(expired)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		if s.close() {
			m.metrics.SessionClosed()
		}
	}
}

// Run sweeps idle sessions until ctx is cancelled, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			m.logger.Info().Msg("session manager stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
