package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/metrics"
)

const (
	defaultRetention    = 30 * time.Minute
	defaultReapInterval = time.Minute
)

// ErrSessionNotFound is returned for unknown IDs and for sessions owned by someone else.
var ErrSessionNotFound = errors.New("session not found")

// ManagerOptions configures session retention.
type ManagerOptions struct {
	Retention    time.Duration
	ReapInterval time.Duration
	Metrics      *metrics.Recorder
	Now          func() time.Time
	// OnClose runs after a session is removed, reaped or closed on shutdown.
	OnClose func(id uuid.UUID)
	// Attached reports whether a live client is connected to the session.
	// Attached in-progress sessions are never reaped.
	Attached func(id uuid.UUID) bool
}

// Manager holds the live sessions of a gateway process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entry

	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Recorder
	now       func() time.Time
	onClose   func(id uuid.UUID)
	attached  func(id uuid.UUID) bool
	logger    zerolog.Logger
}

type entry struct {
	session *Session
	owner   string
	touched time.Time
}

func NewManager(opts ManagerOptions, logger zerolog.Logger) *Manager {
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = defaultReapInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnClose == nil {
		opts.OnClose = func(uuid.UUID) {}
	}
	if opts.Attached == nil {
		opts.Attached = func(uuid.UUID) bool { return false }
	}
	return &Manager{
		sessions:  make(map[uuid.UUID]*entry),
		retention: opts.Retention,
		interval:  opts.ReapInterval,
		metrics:   opts.Metrics,
		now:       opts.Now,
		onClose:   opts.OnClose,
		attached:  opts.Attached,
		logger:    logger.With().Str("component", "session_manager").Logger(),
	}
}

// Add registers a session for owner.
func (m *Manager) Add(owner string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID()] = &entry{session: s, owner: owner, touched: m.now()}
	m.metrics.SessionOpened()
	m.logger.Info().Str("session_id", s.ID().String()).Str("owner", owner).Msg("session registered")
}

// Get returns the owner's session and marks it as recently used.
func (m *Manager) Get(id uuid.UUID, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok || e.owner != owner {
		return nil, ErrSessionNotFound
	}
	e.touched = m.now()
	return e.session, nil
}

// Touch marks a session as recently used without an owner check. Callers
// that already hold the session, like a live connection, use it.
func (m *Manager) Touch(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok {
		e.touched = m.now()
	}
}

// Remove closes and forgets the owner's session.
func (m *Manager) Remove(id uuid.UUID, owner string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.owner != owner {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.close(e.session)
	return nil
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run evicts stale sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Reap(); n > 0 {
				m.logger.Info().Int("evicted", n).Int("remaining", m.Len()).Msg("stale sessions evicted")
			}
		}
	}
}

// Reap closes sessions idle for longer than the retention window. In-progress
// sessions whose deadline is still ahead are kept so their countdown can finish,
// as are in-progress sessions with a client attached.
func (m *Manager) Reap() int {
	now := m.now()

	m.mu.Lock()
	var stale []*Session
	for id, e := range m.sessions {
		if now.Sub(e.touched) < m.retention {
			continue
		}
		snap := e.session.Snapshot()
		if snap.Status == StatusInProgress {
			if snap.Deadline != nil && now.Before(*snap.Deadline) {
				continue
			}
			if m.attached(id) {
				continue
			}
		}
		stale = append(stale, e.session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.close(s)
	}
	return len(stale)
}

// CloseAll tears every session down; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*entry)
	m.mu.Unlock()

	for _, e := range sessions {
		m.close(e.session)
	}
}

func (m *Manager) close(s *Session) {
	s.Close()
	m.metrics.SessionClosed()
	m.onClose(s.ID())
}
