package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
)

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// entry is one registry slot. mu is the session's mutation scope and guards
// state and removed.
type entry struct {
	mu           sync.Mutex
	id           string
	state        *engine.GameState
	removed      bool
	createdAt    time.Time
	lastAccessed atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastAccessed.Store(now.UnixNano())
}

func (e *entry) lastAccessedAt() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}

// snapshot copies the entry into a service.Session. Caller holds e.mu.
func (e *entry) snapshot() *service.Session {
	return &service.Session{
		ID:             e.id,
		State:          e.state.Clone(),
		CreatedAt:      e.createdAt,
		LastAccessedAt: e.lastAccessedAt(),
	}
}

// Manager is the session registry. The map lock only covers membership, so
// lookups for different sessions never wait on each other's mutations.
type Manager struct {
	sessions    map[string]*entry
	persistence SessionPersistence
	clock       clockwork.Clock
	mu          sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithPersistence enables snapshot persistence.
func WithPersistence(p SessionPersistence) Option {
	return func(m *Manager) { m.persistence = p }
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates an empty waiting session under a fresh random id.
func (m *Manager) Create() (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	if _, exists := m.sessions[id]; exists {
		return nil, ErrSessionAlreadyExists
	}

	e := m.newEntry(id, engine.NewGameState(id), m.clock.Now())
	m.sessions[id] = e

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

func (m *Manager) newEntry(id string, state *engine.GameState, createdAt time.Time) *entry {
	e := &entry{id: id, state: state, createdAt: createdAt}
	e.touch(m.clock.Now())
	return e
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[strings.ToLower(id)]
	return e, ok
}

// Get returns a point-in-time copy of the session.
func (m *Manager) Get(id string) (*service.Session, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrSessionNotFound
	}
	e.touch(m.clock.Now())
	return e.snapshot(), nil
}

// WithSession runs fn inside the session's mutation scope. fn works on a
// copy; the copy replaces the stored state and the version is bumped only
// when fn returns nil. At most one fn runs per session at a time.
func (m *Manager) WithSession(id string, fn func(state *engine.GameState) error) (*service.Session, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, ErrSessionNotFound
	}

	working := e.state.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	working.Version = e.state.Version + 1
	e.state = working
	e.touch(m.clock.Now())
	return e.snapshot(), nil
}

// List returns copies of all sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	result := make([]*service.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			result = append(result, e.snapshot())
		}
		e.mu.Unlock()
	}
	return result
}

// Delete removes a session. Mutations waiting on it fail with ErrSessionNotFound.
func (m *Manager) Delete(id string) error {
	if !m.remove(id) {
		return ErrSessionNotFound
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
	}
	return nil
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	key := strings.ToLower(id)
	e, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

// CleanupExpiredSessions removes sessions that haven't been accessed in the
// given duration and returns their IDs.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) []string {
	cutoff := m.clock.Now().Add(-maxAge)

	m.mu.RLock()
	var expired []string
	for id, e := range m.sessions {
		if e.lastAccessedAt().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	var removed []string
	for _, id := range expired {
		err := m.Delete(id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to delete expired session")
		}
		removed = append(removed, id)
	}
	return removed
}

// Count returns the number of sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LoadPersistedSessions loads all persisted sessions into memory. Restored
// players are marked disconnected until their channels come back.
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	loaded := 0
	for _, id := range ids {
		if _, exists := m.lookup(id); exists {
			continue
		}

		sess, err := m.persistence.Load(id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to load persisted session")
			continue
		}
		for _, p := range sess.State.Players {
			p.Connected = false
		}

		e := m.newEntry(strings.ToLower(sess.ID), sess.State, sess.CreatedAt)
		m.mu.Lock()
		m.sessions[e.id] = e
		m.mu.Unlock()
		loaded++
	}

	if loaded > 0 {
		log.Info().Int("count", loaded).Msg("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions writes every session to persistence. States are copied
// under each mutation scope and written after it is released.
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	errorCount := 0
	for _, sess := range m.List() {
		if err := m.persistence.Save(sess); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to save session")
			errorCount++
			continue
		}
		// Deleted while the file was being written.
		if _, ok := m.lookup(sess.ID); !ok {
			m.persistence.Delete(sess.ID)
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}
	return nil
}
