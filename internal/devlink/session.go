package devlink

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/rosguard/internal/logging"
)

const (
	// DefaultHealthCheckInterval is how often an idle-but-live session is
	// probed before being handed out
	DefaultHealthCheckInterval = 60 * time.Second

	// DefaultMaxIdleTime is how long a session may sit unused before it is
	// discarded and rebuilt on the next acquire
	DefaultMaxIdleTime = 5 * time.Minute

	// healthProbeCommand is a trivial idempotent command used to verify the
	// session end to end. Identity print is cheap and available to any user
	// with read policy.
	healthProbeCommand = "/system identity print"
)

// Session is an authenticated, reusable connection to one device. Sessions
// are owned by the SessionManager; callers borrow them for the duration of a
// single command and never close them directly.
type Session struct {
	ID              uint64
	Transport       Transport
	CreatedAt       time.Time
	LastUsed        time.Time
	LastHealthCheck time.Time
	alive           bool
}

// SessionManager maintains at most one live session to a device, recycling
// it when it goes stale or fails its health probe. All access to the shared
// session is serialized: two concurrent commands against the same device
// queue rather than interleave, which is the ordering mutating commands need.
type SessionManager struct {
	cfg  DeviceConfig
	dial DialFunc

	// HealthCheckInterval is how often the probe command is issued on
	// acquire for an otherwise live session
	HealthCheckInterval time.Duration

	// MaxIdleTime is the idle threshold past which a session is discarded
	MaxIdleTime time.Duration

	mu      sync.Mutex
	session *Session
	nextID  uint64
	closed  bool
}

// NewSessionManager creates a session manager for one device. No connection
// is made until the first Acquire.
func NewSessionManager(cfg DeviceConfig) *SessionManager {
	return NewSessionManagerWithDialer(cfg, DialSSH)
}

// NewSessionManagerWithDialer creates a session manager with a custom dialer.
// Tests use this to substitute fake transports.
func NewSessionManagerWithDialer(cfg DeviceConfig, dial DialFunc) *SessionManager {
	return &SessionManager{
		cfg:                 cfg.withDefaults(),
		dial:                dial,
		HealthCheckInterval: DefaultHealthCheckInterval,
		MaxIdleTime:         DefaultMaxIdleTime,
	}
}

// Config returns the device configuration this manager connects with
func (m *SessionManager) Config() DeviceConfig {
	return m.cfg
}

// Acquire returns a healthy session, creating or recycling one as needed.
// The caller must not retain the session past the current command; the next
// Acquire may hand out the same session or a replacement.
func (m *SessionManager) Acquire() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, NewConnectionError("session manager is shut down", nil)
	}

	if m.session != nil {
		s := m.session

		switch {
		case !s.alive || !s.Transport.Alive():
			logging.Debug("Session transport inactive, recycling", zap.Uint64("session_id", s.ID))
			m.discardLocked()

		case time.Since(s.LastUsed) > m.MaxIdleTime:
			logging.Debug("Session idle past threshold, recycling",
				zap.Uint64("session_id", s.ID),
				zap.Duration("idle", time.Since(s.LastUsed)))
			m.discardLocked()

		case time.Since(s.LastHealthCheck) > m.HealthCheckInterval:
			if err := m.probeLocked(s); err != nil {
				logging.Warn("Session health probe failed, recycling",
					zap.Uint64("session_id", s.ID), zap.Error(err))
				m.discardLocked()
			}
		}
	}

	if m.session == nil {
		s, err := m.connectLocked()
		if err != nil {
			return nil, err
		}
		m.session = s
	}

	m.session.LastUsed = time.Now()
	return m.session, nil
}

// MarkUnhealthy flags the given session so the next Acquire builds a fresh
// one. Used by the gateway when a command fails in a transport-indicative
// way. A stale pointer to an already-replaced session is ignored.
func (m *SessionManager) MarkUnhealthy(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && s != nil && m.session.ID == s.ID {
		m.session.alive = false
	}
}

// Shutdown closes the current session and prevents further acquires
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardLocked()
	m.closed = true
}

// connectLocked dials the device. The dial authenticates end to end, so the
// fresh session counts as probed until the next health interval. Caller
// holds m.mu.
func (m *SessionManager) connectLocked() (*Session, error) {
	transport, err := m.dial(m.cfg)
	if err != nil {
		return nil, err
	}

	m.nextID++
	now := time.Now()
	s := &Session{
		ID:              m.nextID,
		Transport:       transport,
		CreatedAt:       now,
		LastUsed:        now,
		LastHealthCheck: now,
		alive:           true,
	}

	logging.LogSession(fmt.Sprintf("%s:%d", m.cfg.Address, m.cfg.Port), "connected")
	return s, nil
}

// probeLocked runs the trivial health command over the session. Caller holds
// m.mu.
func (m *SessionManager) probeLocked(s *Session) error {
	_, _, err := s.Transport.Run(healthProbeCommand, m.cfg.CommandTimeout)
	if err != nil {
		return err
	}
	s.LastHealthCheck = time.Now()
	return nil
}

// discardLocked closes and forgets the current session. Caller holds m.mu.
func (m *SessionManager) discardLocked() {
	if m.session == nil {
		return
	}
	_ = m.session.Transport.Close()
	m.session.alive = false
	m.session = nil
}
