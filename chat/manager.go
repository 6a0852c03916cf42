package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/ooye-live/telemetry"
)

// ScriptSource produces the ordered script for a new session.
type ScriptSource interface {
	Script(ctx context.Context) ([]Record, error)
}

// ManagerConfig bounds the sessions a Manager keeps open.
type ManagerConfig struct {
	Session     SessionConfig
	MaxSessions int           // 0 means unlimited
	IdleTTL     time.Duration // 0 disables reaping
}

// Manager owns the open sessions of a process.
type Manager struct {
	ctx    context.Context
	source ScriptSource
	cfg    ManagerConfig
	clock  clockwork.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager whose sessions replay scripts from source.
// Replays run under ctx; cancelling it halts every replay.
func NewManager(ctx context.Context, source ScriptSource, cfg ManagerConfig) *Manager {
	clock := cfg.Session.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
		cfg.Session.Clock = clock
	}
	return &Manager{
		ctx:      ctx,
		source:   source,
		cfg:      cfg,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// Create loads a fresh script, opens a session around it and starts its replay.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if m.cfg.MaxSessions > 0 && m.Count() >= m.cfg.MaxSessions {
		return nil, ErrTooManySessions
	}

	var (
		script []Record
		err    error
	)
	telemetry.TimeFunc(telemetry.ScriptLoadDuration, func() { script, err = m.source.Script(ctx) })
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	s := NewSession(uuid.NewString(), script, m.cfg.Session)

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	s.Start(m.ctx)
	telemetry.IncSessionsCreated()
	telemetry.SetActiveSessions(n)
	slog.Info("chat session started",
		slog.String("component", "sessions"),
		slog.String("session", s.ID),
		slog.Int("script_len", len(script)))
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	telemetry.SetActiveSessions(n)
	slog.Info("chat session closed", slog.String("component", "sessions"), slog.String("session", id))
	return nil
}

// List returns open sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the configured TTL and returns how many.
func (m *Manager) Reap() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		telemetry.AddSessionsReaped(len(stale))
		telemetry.SetActiveSessions(n)
		slog.Info("reaped idle chat sessions", slog.String("component", "sessions"), slog.Int("count", len(stale)))
	}
	return len(stale)
}

// StartReaper reaps idle sessions every interval until ctx is done.
func (m *Manager) StartReaper(ctx context.Context, every time.Duration) {
	if m.cfg.IdleTTL <= 0 || every <= 0 {
		return
	}
	go func() {
		ticker := m.clock.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				m.Reap()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CloseAll ends every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	telemetry.SetActiveSessions(0)
}
