package sse

import (
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
)

// Manager maps session_id to its current stream. Only one stream may be
// active per session at a time; creating a new one for an already-live
// session closes the old one first.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	bufferSize        int
	keepAliveInterval time.Duration
}

// NewManager builds an SSE manager. bufferSize/keepAliveInterval apply to
// every stream it creates; pass zero values to use the package defaults.
func NewManager(bufferSize int, keepAliveInterval time.Duration) *Manager {
	return &Manager{
		streams:           make(map[string]*Stream),
		bufferSize:        bufferSize,
		keepAliveInterval: keepAliveInterval,
	}
}

// CreateStream closes any pre-existing stream for sessionID, then installs
// and returns the new one.
func (m *Manager) CreateStream(sessionID string, w http.ResponseWriter) (*Stream, error) {
	stream, err := NewStream(sessionID, w, m.bufferSize, m.keepAliveInterval)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if old, exists := m.streams[sessionID]; exists {
		old.Close()
	}
	m.streams[sessionID] = stream
	m.mu.Unlock()

	logging.Debug(subsystem, "stream created for session=%s", logging.TruncateSessionID(sessionID))
	return stream, nil
}

// SendEvent sends message to sessionID's active stream, if any. Returns
// true iff an active stream existed and the send did not error.
func (m *Manager) SendEvent(sessionID string, message []byte) bool {
	return m.SendEventWithType(sessionID, message, "")
}

// SendEventWithType is SendEvent with an explicit SSE event type.
func (m *Manager) SendEventWithType(sessionID string, message []byte, eventType string) bool {
	m.mu.RLock()
	stream, ok := m.streams[sessionID]
	m.mu.RUnlock()

	if !ok || !stream.Active() {
		return false
	}
	if err := stream.SendWithType(message, eventType); err != nil {
		logging.Warn(subsystem, "send to session=%s failed: %v", logging.TruncateSessionID(sessionID), err)
		return false
	}
	return true
}

// HandleReconnect parses lastEventID as "<session_id>:<n>", creates a new
// stream for the session, and replays every buffered event whose
// sequence is strictly greater than n. Invalid or non-matching ids are
// tolerated: a fresh stream is still created with no replay.
func (m *Manager) HandleReconnect(sessionID, lastEventID string, w http.ResponseWriter) (*Stream, error) {
	m.mu.Lock()
	old, hadOld := m.streams[sessionID]
	m.mu.Unlock()

	var toReplay []bufferedEvent
	if hadOld {
		parsedSession, n, ok := ParseLastEventID(lastEventID)
		if ok && parsedSession == sessionID {
			old.mu.Lock()
			for _, ev := range old.buffer {
				if ev.sequence > n {
					toReplay = append(toReplay, ev)
				}
			}
			old.mu.Unlock()
		}
		old.Close()
	}

	stream, err := NewStream(sessionID, w, m.bufferSize, m.keepAliveInterval)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.streams[sessionID] = stream
	m.mu.Unlock()

	for _, ev := range toReplay {
		if err := stream.replayEvent(ev); err != nil {
			return stream, err
		}
	}

	logging.Debug(subsystem, "reconnected session=%s replayed=%d", logging.TruncateSessionID(sessionID), len(toReplay))
	return stream, nil
}

// CloseStream closes and removes sessionID's stream, if any.
func (m *Manager) CloseStream(sessionID string) {
	m.mu.Lock()
	stream, ok := m.streams[sessionID]
	delete(m.streams, sessionID)
	m.mu.Unlock()

	if ok {
		stream.Close()
	}
}

// StreamCount returns the number of tracked streams (active or not yet
// garbage collected).
func (m *Manager) StreamCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}
