package oauthclient

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
)

// SessionStore holds in-flight authorization sessions between
// BuildAuthorizationURL and HandleCallback, swept on a TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*AuthSession

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// NewSessionStore creates a session store. sweepInterval of 0 disables
// the background sweep goroutine.
func NewSessionStore(sweepInterval time.Duration) *SessionStore {
	s := &SessionStore{
		sessions:      make(map[string]*AuthSession),
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

// Create generates a fresh 256-bit base64url state and stores the
// session under it.
func (s *SessionStore) Create(codeVerifier string, resources []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(stateBytes)

	now := time.Now()
	s.mu.Lock()
	s.sessions[state] = &AuthSession{
		State:        state,
		CodeVerifier: codeVerifier,
		Resources:    resources,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	s.mu.Unlock()
	return state, nil
}

// Consume removes and returns the session for state, regardless of
// whether it matches, so a session can never be replayed.
func (s *SessionStore) Consume(state string) (*AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[state]
	if ok {
		delete(s.sessions, state)
	}
	return sess, ok
}

func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

func (s *SessionStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *SessionStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for state, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, state)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		logging.Debug("OAuthClient", "swept %d expired authorization sessions", removed)
	}
}

// Count returns the number of in-flight sessions.
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
