package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/observability"
)

const (
	globalMaxFrameProcesses = 50
	healthTickInterval      = 60 * time.Second
	idleRestartThreshold    = 300 * time.Second
	restartDebounce         = 2 * time.Second
	gcHintThresholdBytes    = 200 * 1024 * 1024
)

// Manager owns every active Session, enforces the global admission
// ceiling, and runs the 60s health monitor that restarts idle or dead
// sessions and trims over-retained ones to their newest frames.
type Manager struct {
	admit *admission

	mu       sync.RWMutex
	sessions map[string]*Session

	stopHealth context.CancelFunc
}

// NewManager builds a Manager with the global concurrent-frame-process
// ceiling and starts its health monitor.
func NewManager() *Manager {
	m := &Manager{
		admit:    newAdmission(globalMaxFrameProcesses),
		sessions: make(map[string]*Session),
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopHealth = cancel
	go m.healthLoop(ctx)
	return m
}

// Start is idempotent: a session with the same id already present is left
// untouched and Start returns success.
func (m *Manager) Start(ctx context.Context, sessionID string, cameraID, orgID uuid.UUID, rtspURL string, intervalSec int, handler FrameHandler) *Session {
	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return existing
	}
	sess := NewSession(sessionID, cameraID, orgID, rtspURL, intervalSec, m.admit, handler)
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	observability.ActiveSessions.Inc()
	sess.Start(ctx)
	return sess
}

// Stop is idempotent: stopping an unknown or already-stopped session id
// returns success without error.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.Stop()
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	observability.ActiveSessions.Dec()
}

// Get returns the session for sessionID, if any.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// ListActive returns a stats snapshot for every tracked session.
func (m *Manager) ListActive() []Stats {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Stats())
	}
	return out
}

// StopAll stops every tracked session, best-effort, used by the
// /streams/cleanup control-plane endpoint.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

// Close stops the health monitor goroutine.
func (m *Manager) Close() {
	m.stopHealth()
}

// healthLoop runs the 60s ticker sweep over every session.
func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	now := time.Now()
	for _, sess := range sessions {
		stats := sess.Stats()

		if stats.RetainedBytes > maxRetainedBytes {
			sess.trimToNewest(3)
		}

		switch {
		case sess.isDead():
			m.restart(ctx, sess)
		case !stats.LastFrameTime.IsZero() && now.Sub(stats.LastFrameTime) > idleRestartThreshold:
			slog.Warn("session idle past threshold, restarting", "session", sess.ID)
			m.restart(ctx, sess)
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > gcHintThresholdBytes {
		debug.FreeOSMemory()
	}
}

func (m *Manager) restart(ctx context.Context, sess *Session) {
	sess.Stop()
	time.Sleep(restartDebounce)
	sess.incRestart()
	observability.RestartCount.WithLabelValues(sess.ID).Inc()
	sess.Start(ctx)
}

// ActiveCount returns the number of currently tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ErrSessionNotFound is returned by status lookups against an unknown id.
var ErrSessionNotFound = fmt.Errorf("session not found")
