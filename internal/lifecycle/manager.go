// Package lifecycle implements the JSON-RPC session handshake state
// machine: uninitialized -> initializing -> ready, with a transition to
// shutting_down from any state. Reset returns any state, shutting_down
// included, to uninitialized.
package lifecycle

import (
	"encoding/json"
	"sync"

	"github.com/giantswarm/mcpref/internal/jsonrpc"
)

// State is one of the four lifecycle states a session (or, in stateless
// mode, the server as a whole) can occupy.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// SupportedProtocolVersion is the only protocolVersion the handshake
// accepts.
const SupportedProtocolVersion = "2025-11-25"

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo is the client identity captured during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the parsed body of an `initialize` request.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// InitializeResult is the successful response to `initialize`.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// Manager owns the lifecycle state for a single session (or the single
// implicit session in stateless mode). It is safe for concurrent use; a
// single mutex guards state transitions and the captured client info,
// mirroring the single-lock convention used elsewhere for small pieces
// of mutable session-adjacent state.
type Manager struct {
	mu    sync.RWMutex
	state State

	serverInfo         ServerInfo
	serverCapabilities json.RawMessage

	clientInfo         ClientInfo
	clientCapabilities json.RawMessage

	shutdownOnce sync.Once
}

// NewManager constructs a Manager in the uninitialized state.
func NewManager(serverInfo ServerInfo, serverCapabilities json.RawMessage) *Manager {
	return &Manager{
		state:              StateUninitialized,
		serverInfo:         serverInfo,
		serverCapabilities: serverCapabilities,
	}
}

// NewReadyManager constructs a Manager already in the ready state, with
// no handshake required. Used for the stateless transport mode, where
// there is no per-connection session to tie an initialize call to.
func NewReadyManager(serverInfo ServerInfo, serverCapabilities json.RawMessage) *Manager {
	m := NewManager(serverInfo, serverCapabilities)
	m.state = StateReady
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ClientCapabilities returns the capability map negotiated at
// initialize, or nil before the handshake completes.
func (m *Manager) ClientCapabilities() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientCapabilities
}

// HandleInitialize validates and applies an `initialize` request.
func (m *Manager) HandleInitialize(params InitializeParams) (*InitializeResult, *jsonrpc.ErrorObject) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return nil, &jsonrpc.ErrorObject{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "invalid_request: initialize called outside uninitialized state",
		}
	}

	if params.ProtocolVersion != SupportedProtocolVersion {
		data, _ := json.Marshal(map[string]string{
			"supported": SupportedProtocolVersion,
			"received":  params.ProtocolVersion,
		})
		return nil, &jsonrpc.ErrorObject{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "invalid_request: unsupported protocol version",
			Data:    data,
		}
	}

	if params.ClientInfo.Name == "" {
		return nil, &jsonrpc.ErrorObject{
			Code:    jsonrpc.CodeInvalidParams,
			Message: "invalid_params: clientInfo.name is required",
		}
	}

	m.clientInfo = params.ClientInfo
	m.clientCapabilities = params.Capabilities
	m.state = StateInitializing

	return &InitializeResult{
		ProtocolVersion: SupportedProtocolVersion,
		Capabilities:    m.serverCapabilities,
		ServerInfo:      m.serverInfo,
	}, nil
}

// HandleInitialized applies the `notifications/initialized` transition.
func (m *Manager) HandleInitialized() *jsonrpc.ErrorObject {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateInitializing {
		return &jsonrpc.ErrorObject{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "invalid_request: initialized notification outside initializing state",
		}
	}
	m.state = StateReady
	return nil
}

// CheckPreInitialization returns a rejection response if method is not
// admissible in the current state, or nil if it may proceed.
func (m *Manager) CheckPreInitialization(id jsonrpc.ID, method string) *jsonrpc.Message {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	switch state {
	case StateUninitialized:
		if method != "initialize" {
			return jsonrpc.NewErrorResponse(id, jsonrpc.CodeInvalidRequest, "invalid_request: server not initialized", nil)
		}
	case StateInitializing:
		if method != "notifications/initialized" {
			return jsonrpc.NewErrorResponse(id, jsonrpc.CodeInvalidRequest, "invalid_request: handshake not complete, not initialized", nil)
		}
	case StateShuttingDown:
		return jsonrpc.NewErrorResponse(id, jsonrpc.CodeInvalidRequest, "invalid_request: server is shutting down", nil)
	case StateReady:
		// all methods allowed
	}
	return nil
}

// Reset restores the manager to uninitialized and clears captured
// client info.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUninitialized
	m.clientInfo = ClientInfo{}
	m.clientCapabilities = nil
	m.shutdownOnce = sync.Once{}
}

// InitiateShutdown transitions to shutting_down. Returns true on the
// first call, false on any subsequent call.
func (m *Manager) InitiateShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	first := false
	m.shutdownOnce.Do(func() {
		first = true
		m.state = StateShuttingDown
	})
	return first
}
