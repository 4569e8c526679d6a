// Package sse implements Server-Sent Events streaming for the HTTP
// transport's GET /mcp endpoint: per-session streams with a bounded
// replay buffer, keep-alive comments, and Last-Event-Id reconnection.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
)

const subsystem = "SSE"

// DefaultBufferSize bounds the number of buffered events retained per
// stream for replay on reconnect.
const DefaultBufferSize = 256

// DefaultKeepAliveInterval is how often a stream writes a keep-alive
// comment line while idle.
const DefaultKeepAliveInterval = 15 * time.Second

// bufferedEvent is one retained event, kept so a reconnecting client can
// replay everything sent after its Last-Event-Id.
type bufferedEvent struct {
	sequence uint64
	event    string
	data     []byte
}

// Stream wraps a single long-lived HTTP response for one session's SSE
// connection. Not safe for concurrent Send calls from multiple
// goroutines without external synchronization beyond what Stream itself
// provides; Send/Close/replay are internally serialized.
type Stream struct {
	SessionID string

	mu         sync.Mutex
	w          http.ResponseWriter
	flusher    http.Flusher
	sequence   uint64
	buffer     []bufferedEvent
	bufferSize int
	active     bool

	keepAlive     time.Duration
	stopKeepAlive chan struct{}
	keepAliveOnce sync.Once
}

// NewStream writes SSE headers to w and flushes them, then starts the
// keep-alive ticker.
func NewStream(sessionID string, w http.ResponseWriter, bufferSize int, keepAliveInterval time.Duration) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if keepAliveInterval <= 0 {
		keepAliveInterval = DefaultKeepAliveInterval
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &Stream{
		SessionID:     sessionID,
		w:             w,
		flusher:       flusher,
		bufferSize:    bufferSize,
		active:        true,
		keepAlive:     keepAliveInterval,
		stopKeepAlive: make(chan struct{}),
	}

	go s.keepAliveLoop()
	return s, nil
}

// Active reports whether the stream is still open.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Send writes message as an untyped SSE event.
func (s *Stream) Send(message []byte) error {
	return s.SendWithType(message, "")
}

// SendWithType writes message as an SSE event of the given type. An
// empty eventType omits the `event:` line.
func (s *Stream) SendWithType(message []byte, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return fmt.Errorf("sse: stream for session %s is closed", logging.TruncateSessionID(s.SessionID))
	}

	s.sequence++
	seq := s.sequence

	if err := s.writeEventLocked(seq, eventType, message); err != nil {
		return err
	}

	s.appendBufferLocked(bufferedEvent{sequence: seq, event: eventType, data: message})
	return nil
}

// writeEventLocked writes the raw SSE frame. Caller holds s.mu.
func (s *Stream) writeEventLocked(seq uint64, eventType string, data []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s:%d\n", s.SessionID, seq)
	if eventType != "" {
		fmt.Fprintf(&b, "event: %s\n", eventType)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		s.active = false
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Stream) appendBufferLocked(ev bufferedEvent) {
	s.buffer = append(s.buffer, ev)
	if len(s.buffer) > s.bufferSize {
		s.buffer = s.buffer[len(s.buffer)-s.bufferSize:]
	}
}

// ReplayEvent writes ev using its original sequence id and advances the
// stream's sequence counter to at least ev.sequence, so later Sends
// continue strictly after it.
func (s *Stream) replayEvent(ev bufferedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return fmt.Errorf("sse: stream for session %s is closed", logging.TruncateSessionID(s.SessionID))
	}
	if err := s.writeEventLocked(ev.sequence, ev.event, ev.data); err != nil {
		return err
	}
	if ev.sequence > s.sequence {
		s.sequence = ev.sequence
	}
	return nil
}

// Close marks the stream inactive and stops its keep-alive goroutine.
// Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.keepAliveOnce.Do(func() {
		close(s.stopKeepAlive)
	})
}

func (s *Stream) keepAliveLoop() {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.active {
				s.mu.Unlock()
				return
			}
			_, err := s.w.Write([]byte(": keep-alive\n\n"))
			if err == nil {
				s.flusher.Flush()
			} else {
				s.active = false
			}
			s.mu.Unlock()
		case <-s.stopKeepAlive:
			return
		}
	}
}

// ParseLastEventID splits a Last-Event-Id header of the form
// "<session_id>:<sequence>" into its parts. Session ids may themselves
// contain colons, so only the text after the final colon is taken as the
// sequence number.
func ParseLastEventID(lastEventID string) (sessionID string, sequence uint64, ok bool) {
	idx := strings.LastIndex(lastEventID, ":")
	if idx < 0 || idx == len(lastEventID)-1 {
		return "", 0, false
	}
	seqPart := lastEventID[idx+1:]
	n, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return lastEventID[:idx], n, true
}
