// Package transport implements the streaming HTTP transport: POST /mcp
// for inbound JSON-RPC and GET /mcp for outbound SSE, in both stateful
// and stateless modes, following the teacher's small-ServeMux-plus-
// protection-middleware pattern.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/mcpref/internal/jsonrpc"
	"github.com/giantswarm/mcpref/internal/lifecycle"
	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/internal/session"
	"github.com/giantswarm/mcpref/internal/sse"
)

const subsystem = "Transport"

// DefaultMaxBodyBytes bounds the size of an inbound JSON-RPC POST body.
const DefaultMaxBodyBytes = 100 * 1024

// SessionIDHeader is the header stateful mode uses to carry the session
// id both ways.
const SessionIDHeader = "MCP-Session-Id"

// ProtocolVersionHeader must match the server's supported protocol
// version on every request.
const ProtocolVersionHeader = "MCP-Protocol-Version"

// StatelessSessionID is the literal session id passed to the dispatcher
// for every request when the server runs in stateless mode.
const StatelessSessionID = "stateless"

// Dispatcher routes a parsed JSON-RPC message for an established
// session to the rest of the server and returns the response message
// for requests, or nil for notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Message
}

// Config configures a transport Server.
type Config struct {
	ProtocolVersion string
	MaxBodyBytes    int64
	AllowedOrigins  []string // "*" disables origin checking entirely
	Stateless       bool

	ServerInfo         lifecycle.ServerInfo
	ServerCapabilities json.RawMessage

	Sessions   *session.Manager
	Streams    *sse.Manager
	Dispatcher Dispatcher
}

// Server implements the /mcp HTTP surface.
type Server struct {
	cfg Config

	statelessSession *session.Session
}

// NewServer builds the /mcp http.Handler described by cfg.
func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{cfg: cfg}
	if cfg.Stateless {
		s.statelessSession = &session.Session{
			ID:        StatelessSessionID,
			Lifecycle: lifecycle.NewReadyManager(cfg.ServerInfo, cfg.ServerCapabilities),
			CreatedAt: time.Now(),
		}
	}
	return s
}

// Handler returns the ServeMux this Server installs its routes on.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.handleCORSPreflight(w, r)
		return
	}

	if !s.checkOrigin(w, r) {
		return
	}
	s.applyCORSHeaders(w, r)

	if r.Header.Get(ProtocolVersionHeader) != s.cfg.ProtocolVersion {
		writeJSONError(w, http.StatusBadRequest, "unsupported or missing "+ProtocolVersionHeader+" header")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) checkOrigin(w http.ResponseWriter, r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" {
			return true
		}
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}

	w.WriteHeader(http.StatusForbidden)
	return false
}

func (s *Server) applyCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Expose-Headers", SessionIDHeader)
	}
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleCORSPreflight(w http.ResponseWriter, r *http.Request) {
	s.applyCORSHeaders(w, r)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", ProtocolVersionHeader+", "+SessionIDHeader+", Content-Type, Authorization, Last-Event-Id")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || !strings.HasPrefix(mediaType, "application/") || !strings.HasSuffix(mediaType, "json") {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
	} else {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	msg, err := jsonrpc.ParseMessage(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.cfg.Stateless {
		s.dispatchStateless(w, r, msg)
		return
	}
	s.dispatchStateful(w, r, msg)
}

func (s *Server) dispatchStateless(w http.ResponseWriter, r *http.Request, msg *jsonrpc.Message) {
	if s.cfg.Dispatcher == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := s.cfg.Dispatcher.Dispatch(r.Context(), s.statelessSession, msg)
	s.writeDispatchResult(w, msg, resp)
}

func (s *Server) dispatchStateful(w http.ResponseWriter, r *http.Request, msg *jsonrpc.Message) {
	if s.cfg.Dispatcher == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if msg.Method == "initialize" {
		sess, err := s.cfg.Sessions.Create()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := s.cfg.Dispatcher.Dispatch(r.Context(), sess, msg)
		w.Header().Set(SessionIDHeader, sess.ID)
		s.writeDispatchResult(w, msg, resp)
		return
	}

	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+SessionIDHeader+" header")
		return
	}

	sess, ok := s.cfg.Sessions.Get(sessionID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	sess.Touch()

	resp := s.cfg.Dispatcher.Dispatch(r.Context(), sess, msg)
	s.writeDispatchResult(w, msg, resp)
}

func (s *Server) writeDispatchResult(w http.ResponseWriter, req *jsonrpc.Message, resp *jsonrpc.Message) {
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := jsonrpc.Serialize(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stateless {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing "+SessionIDHeader+" header")
		return
	}

	sess, ok := s.cfg.Sessions.Get(sessionID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	sess.Touch()

	var err error
	if lastEventID := r.Header.Get("Last-Event-Id"); lastEventID != "" {
		_, err = s.cfg.Streams.HandleReconnect(sessionID, lastEventID, w)
	} else {
		_, err = s.cfg.Streams.CreateStream(sessionID, w)
	}
	if err != nil {
		logging.Warn(subsystem, "sse stream setup failed for session=%s: %v", logging.TruncateSessionID(sessionID), err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
