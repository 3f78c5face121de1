package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
)

// Manager tracks every live session and owns their teardown at shutdown.
type Manager struct {
	cfg     Config
	dialer  UpstreamDialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
}

// NewManager creates a session manager. The dialer opens one upstream
// connection per accepted call.
func NewManager(cfg Config, dialer UpstreamDialer, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		logger:   logger,
		metrics:  m,
		sessions: make(map[uint64]*Session),
	}
}

// Accept registers a new call and starts bridging it. The returned session
// runs until either leg ends; use Wait to block for its termination.
func (m *Manager) Accept(downstream DownstreamConn) *Session {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	sess := newSession(id, m.cfg, downstream, m.dialer, m.logger, m.metrics, m.remove)
	m.sessions[id] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Session accepted",
		slog.Uint64("session_id", id),
		slog.Int("active_sessions", count),
	)

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		sess.run()
	}()

	return sess
}

// ActiveCount returns the number of currently live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SessionInfo is a monitoring snapshot of one session.
type SessionInfo struct {
	ID        uint64        `json:"id"`
	StreamSID string        `json:"stream_sid,omitempty"`
	State     string        `json:"state"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// Snapshot returns monitoring information for every live session.
func (m *Manager) Snapshot() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, SessionInfo{
			ID:        sess.ID,
			StreamSID: sess.StreamSID(),
			State:     sess.State().String(),
			StartTime: sess.StartTime,
			Duration:  time.Since(sess.StartTime),
		})
	}
	return infos
}

// Stop tears down every live session and waits for them to terminate.
func (m *Manager) Stop() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	m.logger.Info("Stopping session manager", slog.Int("sessions", len(sessions)))

	for _, sess := range sessions {
		sess.Stop("service shutting down")
	}
	for _, sess := range sessions {
		sess.Wait()
	}

	m.logger.Info("Session manager stopped")
}

// remove drops a terminated session from the registry.
func (m *Manager) remove(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, sess.ID)
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(count)
}
