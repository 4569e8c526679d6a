// Package dispatch wires the lifecycle handshake, capability gate, and
// scope policy into a single transport.Dispatcher: the one place a
// parsed JSON-RPC message becomes a routed method call.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/giantswarm/mcpref/internal/authmw"
	"github.com/giantswarm/mcpref/internal/capability"
	"github.com/giantswarm/mcpref/internal/jsonrpc"
	"github.com/giantswarm/mcpref/internal/lifecycle"
	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/internal/metrics"
	"github.com/giantswarm/mcpref/internal/scope"
	"github.com/giantswarm/mcpref/internal/session"
)

const subsystem = "Dispatch"

// ToolHandler executes a single named tool and returns its JSON result.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error)

// Server is the reference Dispatcher: it drives each session's
// lifecycle.Manager through the handshake, gates every post-handshake
// method on capability and (when a bearer token is attached to the
// request context) scope, and routes tools/call to a registered
// ToolHandler.
type Server struct {
	Capabilities *capability.Manager
	ScopePolicy  *scope.Policy
	Metrics      *metrics.Registry

	tools map[string]ToolHandler
}

// NewServer builds a Server with an empty tool table.
func NewServer(capabilities *capability.Manager, policy *scope.Policy) *Server {
	return &Server{
		Capabilities: capabilities,
		ScopePolicy:  policy,
		tools:        make(map[string]ToolHandler),
	}
}

// RegisterTool adds or replaces the handler for a named tool.
func (s *Server) RegisterTool(name string, handler ToolHandler) {
	s.tools[name] = handler
}

// Dispatch implements transport.Dispatcher.
func (s *Server) Dispatch(ctx context.Context, sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Message {
	if rejection := sess.Lifecycle.CheckPreInitialization(msg.ID, msg.Method); rejection != nil {
		return respondOrNil(msg, rejection)
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(sess, msg)
	case "notifications/initialized":
		sess.Lifecycle.HandleInitialized()
		return nil
	case "ping":
		return jsonrpc.NewSuccessResponse(msg.ID, json.RawMessage(`{}`))
	}

	if msg.IsNotification() {
		if !s.Capabilities.ValidateNotificationCapability(msg.Method) {
			logging.Debug(subsystem, "dropping notification %s: capability not granted", msg.Method)
		}
		return nil
	}

	if errObj := s.Capabilities.ValidateMethodCapability(msg.Method); errObj != nil {
		return jsonrpc.NewErrorResponse(msg.ID, errObj.Code, errObj.Message, errObj.Data)
	}

	if errObj := s.checkScope(ctx, msg.Method); errObj != nil {
		if s.Metrics != nil {
			s.Metrics.RecordAuthOutcome(metrics.AuthOutcomeInsufficientScope)
		}
		return jsonrpc.NewErrorResponse(msg.ID, errObj.Code, errObj.Message, errObj.Data)
	}

	switch msg.Method {
	case "tools/list":
		return s.handleToolsList(msg)
	case "tools/call":
		return s.handleToolsCall(ctx, msg)
	case "server/shutdown":
		sess.Lifecycle.InitiateShutdown()
		return jsonrpc.NewSuccessResponse(msg.ID, json.RawMessage(`{}`))
	default:
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "method not found: "+msg.Method, nil)
	}
}

func respondOrNil(msg *jsonrpc.Message, rejection *jsonrpc.Message) *jsonrpc.Message {
	if msg.IsNotification() {
		return nil
	}
	return rejection
}

func (s *Server) handleInitialize(sess *session.Session, msg *jsonrpc.Message) *jsonrpc.Message {
	var params lifecycle.InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInvalidParams, "invalid_params: malformed initialize params", nil)
		}
	}

	result, errObj := sess.Lifecycle.HandleInitialize(params)
	if errObj != nil {
		return jsonrpc.NewErrorResponse(msg.ID, errObj.Code, errObj.Message, errObj.Data)
	}
	sess.SetClientInfo(params.ClientInfo)
	if err := s.Capabilities.SetClientCapabilities(params.Capabilities); err != nil {
		logging.Warn(subsystem, "failed to parse client capabilities: %v", err)
	}

	data, _ := json.Marshal(result)
	return jsonrpc.NewSuccessResponse(msg.ID, data)
}

func (s *Server) handleToolsList(msg *jsonrpc.Message) *jsonrpc.Message {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	data, _ := json.Marshal(map[string]interface{}{"tools": names})
	return jsonrpc.NewSuccessResponse(msg.ID, data)
}

func (s *Server) handleToolsCall(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Message {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInvalidParams, "invalid_params: malformed tools/call params", nil)
	}

	if errObj := s.checkToolScope(ctx, params.Name); errObj != nil {
		return jsonrpc.NewErrorResponse(msg.ID, errObj.Code, errObj.Message, errObj.Data)
	}

	handler, ok := s.tools[params.Name]
	if !ok {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInvalidParams, "invalid_params: unknown tool "+params.Name, nil)
	}

	result, err := handler(ctx, params.Arguments)
	if err != nil {
		// Tool-execution failures never surface as JSON-RPC protocol
		// errors; they are reported in-band as a successful result the
		// tool marked as failed.
		data, _ := json.Marshal(map[string]interface{}{
			"isError": true,
			"content": []map[string]string{{"type": "text", "text": err.Error()}},
		})
		return jsonrpc.NewSuccessResponse(msg.ID, data)
	}
	return jsonrpc.NewSuccessResponse(msg.ID, result)
}

func (s *Server) checkScope(ctx context.Context, method string) *jsonrpc.ErrorObject {
	return s.checkScopeForTool(ctx, method, "")
}

func (s *Server) checkToolScope(ctx context.Context, toolName string) *jsonrpc.ErrorObject {
	return s.checkScopeForTool(ctx, "tools/call", toolName)
}

func (s *Server) checkScopeForTool(ctx context.Context, method, toolName string) *jsonrpc.ErrorObject {
	if s.ScopePolicy == nil {
		return nil
	}
	claims, ok := authmw.ClaimsFromContext(ctx)
	if !ok {
		// No bearer token in context means this request arrived through a
		// transport that doesn't enforce OAuth (e.g. stdio); scope checks
		// only apply when auth middleware actually ran.
		return nil
	}

	required := s.ScopePolicy.RequiredScopes(method, toolName)
	tokenScopes := scope.ParseScopes(claims.Scope)
	result := scope.CheckScopes(tokenScopes, required)
	if result.Allowed {
		return nil
	}
	return &jsonrpc.ErrorObject{
		Code:    jsonrpc.CodeInvalidRequest,
		Message: "insufficient_scope: " + result.Message,
	}
}
