// Package capability gates JSON-RPC dispatch on declared server/client
// capabilities: a static method-to-capability-path table, and a walker
// for the dot-separated capability maps negotiated at initialize.
package capability

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/giantswarm/mcpref/internal/jsonrpc"
)

// methodCapabilities maps a JSON-RPC method to the server capability path
// that must be present for the method to be dispatched.
var methodCapabilities = map[string]string{
	"tools/list":            "tools",
	"tools/call":            "tools",
	"resources/list":        "resources",
	"resources/read":        "resources",
	"resources/subscribe":   "resources.subscribe",
	"resources/unsubscribe": "resources.subscribe",
	"prompts/list":          "prompts",
	"prompts/get":           "prompts",
	"completion/complete":   "completions",
	"logging/setLevel":      "logging",
}

// notificationCapabilities maps an outgoing server notification to the
// client capability path required before it may be sent.
var notificationCapabilities = map[string]string{
	"notifications/roots/listChanged":     "roots.listChanged",
	"notifications/tools/listChanged":     "tools.listChanged",
	"notifications/resources/listChanged": "resources.listChanged",
	"notifications/prompts/listChanged":   "prompts.listChanged",
}

// Manager holds the server's declared capability map and, after the
// handshake, the client's negotiated capability map.
type Manager struct {
	mu                 sync.RWMutex
	serverCapabilities map[string]interface{}
	clientCapabilities map[string]interface{}
}

// NewManager builds a Manager from the server's declared capability map.
func NewManager(serverCapabilities json.RawMessage) (*Manager, error) {
	m := &Manager{}
	if len(serverCapabilities) > 0 {
		if err := json.Unmarshal(serverCapabilities, &m.serverCapabilities); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetClientCapabilities records the capability map the client declared at
// initialize.
func (m *Manager) SetClientCapabilities(raw json.RawMessage) error {
	var parsed map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.clientCapabilities = parsed
	m.mu.Unlock()
	return nil
}

// HasCapability walks a dot-separated path through a capability map.
// Any value present other than the boolean false counts as present,
// including an empty object.
func HasCapability(capabilities map[string]interface{}, path string) bool {
	if capabilities == nil {
		return false
	}
	segments := strings.Split(path, ".")
	current := interface{}(capabilities)

	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return false
		}
		v, ok := m[seg]
		if !ok {
			return false
		}
		current = v
	}

	if b, ok := current.(bool); ok {
		return b
	}
	return true
}

// ValidateMethodCapability checks whether the server declares the
// capability required to dispatch method, returning an invalid_request
// error when it does not. Methods absent from the static table are
// assumed to require no capability.
func (m *Manager) ValidateMethodCapability(method string) *jsonrpc.ErrorObject {
	path, ok := methodCapabilities[method]
	if !ok {
		return nil
	}

	m.mu.RLock()
	has := HasCapability(m.serverCapabilities, path)
	m.mu.RUnlock()

	if !has {
		return &jsonrpc.ErrorObject{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "invalid_request: server capability " + path + " not declared for method " + method,
		}
	}
	return nil
}

// ValidateNotificationCapability checks whether the client declared the
// capability required to receive notification.
func (m *Manager) ValidateNotificationCapability(notification string) bool {
	path, ok := notificationCapabilities[notification]
	if !ok {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return HasCapability(m.clientCapabilities, path)
}
