package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Options configures the sessions a Registry creates.
type Options struct {
	CacheSize   int
	CacheTTL    time.Duration
	IdleTimeout time.Duration
	ChartWidth  int
	ChartHeight int
}

type entry struct {
	session  *Session
	lastUsed time.Time
}

// Registry creates sessions and expires idle ones.
type Registry struct {
	source  domain.ObservationSource
	opts    Options
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry. A nil clock uses real time.
func NewRegistry(source domain.ObservationSource, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		source:   source,
		opts:     opts,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	c := NewCache(r.opts.CacheSize, r.opts.CacheTTL, r.clock, r.metrics)
	s := newSession(id, r.source, c, r.opts.ChartWidth, r.opts.ChartHeight, r.metrics, r.logger)

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, lastUsed: r.clock.Now()}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.ActiveSessions.Set(float64(n))
	r.logger.Info("session created", "session_id", id)
	return s
}

// Get returns the session with id and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := r.clock.Now()
	if r.idle(e, now) {
		r.remove(id)
		return nil, ErrNotFound
	}
	e.lastUsed = now
	return e.session, nil
}

// Delete ends the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	r.remove(id)
	r.logger.Info("session deleted", "session_id", id)
	return nil
}

// Len returns the number of sessions held, including idle ones not yet expired.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expire removes sessions idle for longer than the idle timeout and returns
// how many were removed.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	n := 0
	for id, e := range r.sessions {
		if r.idle(e, now) {
			r.remove(id)
			n++
		}
	}
	if n > 0 {
		r.logger.Info("expired idle sessions", "count", n)
	}
	return n
}

// InvalidateType drops cached results for typeID from every session.
func (r *Registry) InvalidateType(typeID string) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.mu.Unlock()

	removed := 0
	for _, s := range sessions {
		removed += s.InvalidateType(typeID)
	}
	r.metrics.CacheInvalidations.Inc()
	r.logger.Info("invalidated observation type", "type_id", typeID, "sessions", len(sessions), "entries", removed)
}

// Run expires idle sessions every half idle timeout until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.IdleTimeout / 2
	if interval <= 0 {
		return
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Expire()
		}
	}
}

func (r *Registry) idle(e *entry, now time.Time) bool {
	return r.opts.IdleTimeout > 0 && now.Sub(e.lastUsed) >= r.opts.IdleTimeout
}

// remove must be called with r.mu held.
func (r *Registry) remove(id string) {
	delete(r.sessions, id)
	r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
}
