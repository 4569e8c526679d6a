// Package oauthserver implements the in-memory OAuth 2.1 authorization
// server: the authorization-code and refresh-token tables (modeled
// directly on the teacher's token_store.go/state_store.go mutex+map+
// sweep+Stop() idiom, generalized from "OAuth proxy token cache" to
// "authorization server issuer") plus JWT access/refresh token issuance.
package oauthserver

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
)

const subsystem = "OAuthServer"

// CodeEntry is a stored authorization code awaiting exchange at /token.
type CodeEntry struct {
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
	Subject             string
	Resource            string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// RefreshEntry is a stored refresh token.
type RefreshEntry struct {
	ClientID  string
	Subject   string
	Scope     string
	Resource  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// DefaultCodeTTL is how long an authorization code remains exchangeable.
const DefaultCodeTTL = 60 * time.Second

// DefaultRefreshTTL is the default refresh token lifetime.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// Store holds the authorization-code and refresh-token tables. Each has
// its own mutex since codes are write-heavy/single-use and refresh
// tokens are read-heavy/multi-reader; a shared lock would serialize
// unrelated traffic for no benefit.
//
// IMPORTANT: Store starts a background sweep goroutine. Callers MUST
// call Stop() when done to prevent goroutine leaks.
type Store struct {
	codesMu sync.Mutex
	codes   map[string]*CodeEntry

	refreshMu sync.RWMutex
	refresh   map[string]*RefreshEntry

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// NewStore creates a Store and starts its background sweep.
// sweepInterval of 0 disables the sweep entirely (entries still expire
// logically; they are just never proactively evicted).
func NewStore(sweepInterval time.Duration) *Store {
	s := &Store{
		codes:         make(map[string]*CodeEntry),
		refresh:       make(map[string]*RefreshEntry),
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

// StoreCode generates a fresh code, stores entry under it, and returns
// the code string.
func (s *Store) StoreCode(entry CodeEntry, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	code, err := generateToken()
	if err != nil {
		return "", err
	}

	entry.CreatedAt = time.Now()
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	s.codesMu.Lock()
	s.codes[code] = &entry
	s.codesMu.Unlock()

	return code, nil
}

// ConsumeCode atomically retrieves and deletes code. A second call with
// the same code (even within TTL) returns ok=false: consumption races
// against the sweep, and the contract is "succeed or observe expiry,
// never both."
func (s *Store) ConsumeCode(code string) (*CodeEntry, bool) {
	s.codesMu.Lock()
	defer s.codesMu.Unlock()

	entry, exists := s.codes[code]
	if !exists {
		return nil, false
	}
	delete(s.codes, code)

	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// StoreRefresh generates a fresh refresh token, stores entry under it,
// and returns the token string.
func (s *Store) StoreRefresh(entry RefreshEntry, ttlSeconds int) (string, error) {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	entry.CreatedAt = time.Now()
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	s.refreshMu.Lock()
	s.refresh[token] = &entry
	s.refreshMu.Unlock()

	return token, nil
}

// GetRefresh looks up a refresh token, rejecting an expired one.
func (s *Store) GetRefresh(token string) (*RefreshEntry, bool) {
	s.refreshMu.RLock()
	entry, exists := s.refresh[token]
	s.refreshMu.RUnlock()

	if !exists || time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// RevokeRefresh removes a refresh token, returning whether it existed.
func (s *Store) RevokeRefresh(token string) bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	_, exists := s.refresh[token]
	delete(s.refresh, token)
	return exists
}

// Stats reports the live table sizes.
type Stats struct {
	Codes    int
	Refresh  int
}

// Stats returns the current table sizes.
func (s *Store) Stats() Stats {
	s.codesMu.Lock()
	codeCount := len(s.codes)
	s.codesMu.Unlock()

	s.refreshMu.RLock()
	refreshCount := len(s.refresh)
	s.refreshMu.RUnlock()

	return Stats{Codes: codeCount, Refresh: refreshCount}
}

// Clear empties both tables.
func (s *Store) Clear() {
	s.codesMu.Lock()
	s.codes = make(map[string]*CodeEntry)
	s.codesMu.Unlock()

	s.refreshMu.Lock()
	s.refresh = make(map[string]*RefreshEntry)
	s.refreshMu.Unlock()
}

// Stop stops the background sweep. Safe to call more than once, and
// safe to call even if sweepInterval was 0 (no goroutine was started).
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

func (s *Store) sweepLoop() {
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

func (s *Store) sweep() {
	now := time.Now()

	s.codesMu.Lock()
	codeCount := 0
	for code, entry := range s.codes {
		if now.After(entry.ExpiresAt) {
			delete(s.codes, code)
			codeCount++
		}
	}
	s.codesMu.Unlock()

	s.refreshMu.Lock()
	refreshCount := 0
	for token, entry := range s.refresh {
		if now.After(entry.ExpiresAt) {
			delete(s.refresh, token)
			refreshCount++
		}
	}
	s.refreshMu.Unlock()

	if codeCount > 0 || refreshCount > 0 {
		logging.Debug(subsystem, "swept %d expired codes, %d expired refresh tokens", codeCount, refreshCount)
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
