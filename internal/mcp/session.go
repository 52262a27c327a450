package mcp

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mstrand/haltpoint/internal/client"
	"github.com/mstrand/haltpoint/internal/config"
	"github.com/mstrand/haltpoint/internal/debugger"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/internal/replay"
)

// SessionStatus describes where a replay session is in its lifecycle.
type SessionStatus string

const (
	// SessionStatusStopped means the session is paused, either at entry or
	// at a checkpoint.
	SessionStatusStopped SessionStatus = "stopped"
	// SessionStatusRunning means the replay is heading for its next stop.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusTerminated means the trace has run out or the session
	// was torn down.
	SessionStatusTerminated SessionStatus = "terminated"
)

// Session is one replay of one trace.
type Session struct {
	ID        string
	TracePath string
	CreatedAt time.Time

	Client *client.Client

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	status SessionStatus
}

// Status reports the session's lifecycle state. A replay that has run out of
// steps is terminated no matter what a control tool stored last.
func (s *Session) Status() SessionStatus {
	select {
	case <-s.done:
		return SessionStatusTerminated
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Done is closed when the replay has run to completion.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Info is the session summary returned by the session tools.
type Info struct {
	SessionID string        `json:"sessionId"`
	Trace     string        `json:"trace"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Info summarizes the session for listings.
func (s *Session) Info() Info {
	return Info{
		SessionID: s.ID,
		Trace:     s.TracePath,
		Status:    s.Status(),
		CreatedAt: s.CreatedAt,
	}
}

// Manager tracks active replay sessions.
type Manager struct {
	cfg *config.Config

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. Sessions older than the configured
// timeout are swept once a minute.
func NewManager(cfg *config.Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}

	go m.cleanupLoop()

	return m
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *Manager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, session := range m.sessions {
		if now.Sub(session.CreatedAt) > time.Duration(m.cfg.SessionTimeout) {
			m.terminateLocked(id)
		}
	}
}

// Launch loads a trace and starts a new replay session, paused at entry
// waiting for its first resume.
func (m *Manager) Launch(tracePath string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		return nil, errors.SessionLimitReached(m.cfg.MaxSessions)
	}

	trace, err := replay.LoadTrace(tracePath)
	if err != nil {
		return nil, err
	}
	eng := replay.NewEngine(trace)

	opts, err := m.cfg.Session()
	if err != nil {
		return nil, err
	}

	dbg, err := debugger.New(opts, eng)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	session := &Session{
		ID:        uuid.New().String(),
		TracePath: tracePath,
		CreatedAt: time.Now(),
		Client:    client.New(dbg),
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    SessionStatusStopped,
	}

	// The engine owns its goroutine: it waits at entry for the first resume,
	// replays the trace, and re-enters the command loop at every stop.
	go func() {
		defer close(session.done)
		dbg.WaitForCommands()
		if err := eng.Run(ctx, dbg); err != nil {
			log.Printf("Session %s: replay ended early: %v", session.ID, err)
		}
	}()

	m.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}

	return session, nil
}

// List returns all active sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// Terminate tears down a session and forgets it.
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return errors.SessionNotFound(id)
	}

	m.terminateLocked(id)
	return nil
}

// terminateLocked tears down a session. Callers hold m.mu.
func (m *Manager) terminateLocked(id string) {
	session, ok := m.sessions[id]
	if !ok {
		return
	}

	session.cancel()
	if err := session.Client.Close(); err != nil {
		log.Printf("Warning: failed to close session %s: %v (continuing cleanup)", id, err)
	}

	session.setStatus(SessionStatusTerminated)
	delete(m.sessions, id)
}

// Close shuts down the manager and all sessions.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.sessions {
		m.terminateLocked(id)
	}
}
