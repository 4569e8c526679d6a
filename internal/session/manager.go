// Package session implements stateful-mode session tracking: opaque
// crypto-random session identifiers, per-session lifecycle/client state,
// and a background sweep that expires idle sessions.
//
// IMPORTANT: Manager starts a background goroutine for the idle sweep.
// Callers MUST call Stop() when done to prevent goroutine leaks, typically
// via defer right after NewManager, or from a shutdown hook.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/giantswarm/mcpref/internal/lifecycle"
	"github.com/giantswarm/mcpref/internal/logging"
)

const subsystem = "Session"

// DefaultIdleTTL is how long a session may sit untouched before the
// sweep reclaims it.
const DefaultIdleTTL = 30 * time.Minute

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = time.Minute

// Session is the per-connection state tracked between requests in
// stateful mode: its lifecycle manager, negotiated client info, and the
// bookkeeping needed for idle expiry.
type Session struct {
	ID        string
	Lifecycle *lifecycle.Manager

	CreatedAt time.Time

	mu          sync.RWMutex
	lastTouched time.Time
	clientInfo  lifecycle.ClientInfo
	state       map[string]interface{}
}

// Touch refreshes the session's idle deadline.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastTouched = time.Now()
	s.mu.Unlock()
}

// LastTouched returns the time of the most recent Touch.
func (s *Session) LastTouched() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTouched
}

// SetClientInfo records the client identity negotiated at initialize.
func (s *Session) SetClientInfo(info lifecycle.ClientInfo) {
	s.mu.Lock()
	s.clientInfo = info
	s.mu.Unlock()
}

// ClientInfo returns the client identity recorded by SetClientInfo.
func (s *Session) ClientInfo() lifecycle.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// UpdateState merges key into the session's free-form state bag, used for
// things like the SSE resumption cursor or per-session feature toggles.
func (s *Session) UpdateState(key string, value interface{}) {
	s.mu.Lock()
	if s.state == nil {
		s.state = make(map[string]interface{})
	}
	s.state[key] = value
	s.mu.Unlock()
}

// GetState returns a previously stored state value.
func (s *Session) GetState(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Manager tracks all live sessions, indexed by opaque session ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTTL       time.Duration
	serverInfo    lifecycle.ServerInfo
	serverCaps    json.RawMessage
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	sweepInterval time.Duration
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithIdleTTL overrides DefaultIdleTTL.
func WithIdleTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.idleTTL = ttl }
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = interval }
}

// NewManager creates a session manager and starts its background idle
// sweep. serverInfo/serverCapabilities seed each new session's lifecycle
// manager.
func NewManager(serverInfo lifecycle.ServerInfo, serverCapabilities json.RawMessage, opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		idleTTL:       DefaultIdleTTL,
		serverInfo:    serverInfo,
		serverCaps:    serverCapabilities,
		stopCleanup:   make(chan struct{}),
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweepLoop()
	return m
}

// Create allocates a new session with a fresh crypto-random ID.
func (m *Manager) Create() (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		Lifecycle: lifecycle.NewManager(m.serverInfo, m.serverCaps),
		CreatedAt: time.Now(),
	}
	sess.Touch()

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	logging.Debug(subsystem, "created session=%s", logging.TruncateSessionID(id))
	return sess, nil
}

// Get looks up a session by ID. The second return value is false if the
// session does not exist or has been destroyed or swept. Get does not
// check idle expiry itself: an idle session is returned until the next
// sweep removes it.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	return sess, ok
}

// Touch refreshes a session's idle deadline by ID, reporting whether the
// session existed.
func (m *Manager) Touch(id string) bool {
	sess, ok := m.Get(id)
	if !ok {
		return false
	}
	sess.Touch()
	return true
}

// Destroy removes a session immediately, e.g. on an explicit shutdown
// request from the client.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	logging.Debug(subsystem, "destroyed session=%s", logging.TruncateSessionID(id))
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop stops the background idle sweep. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.LastTouched()) > m.idleTTL {
			delete(m.sessions, id)
			count++
		}
	}

	if count > 0 {
		logging.Debug(subsystem, "swept %d idle sessions", count)
	}
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
