package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// wireMessage is the on-the-wire shape before it has been classified into
// one of the three Message variants. json.RawMessage fields let us defer
// interpretation (and hence validation) of id/params/result/error until
// after we know the frame's JSON-RPC version is correct.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`

	hasID     bool
	hasMethod bool
	hasResult bool
	hasError  bool
}

// ParseError is returned by ParseMessage/ParseResponse when the bytes are
// not valid JSON at all, or fail a structural JSON-RPC 2.0 check. Code is
// jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, or (for params that
// are not an object) jsonrpc.CodeInvalidParams.
type ParseError struct {
	Code int
	Msg  string
	Data json.RawMessage
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonrpc parse error %d: %s", e.Code, e.Msg)
}

// ToErrorResponse renders a ParseError as the Message the transport
// should send back, using id when the frame's id could still be
// recovered (invalid-request cases echo it; pure parse failures use
// NullID per spec).
func (e *ParseError) ToErrorResponse(id ID) *Message {
	return NewErrorResponse(id, e.Code, e.Msg, e.Data)
}

// ParseMessage parses a single inbound frame as a request or
// notification. Batch arrays are not supported: an array at the top
// level is an invalid-request parse error.
func ParseMessage(data []byte) (*Message, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "batch messages are not supported"}
	}

	raw, err := decodeWire(data)
	if err != nil {
		return nil, err
	}

	if raw.hasResult || raw.hasError {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "expected request or notification, got response"}
	}
	if raw.Method == "" {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "missing method"}
	}
	if raw.Params != nil {
		if err := validateParamsShape(raw.Params); err != nil {
			return nil, err
		}
		if string(raw.Params) == "null" {
			raw.Params = nil
		}
	}

	if !raw.hasID {
		return &Message{Kind: KindNotification, Method: raw.Method, Params: raw.Params}, nil
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return nil, err
	}
	if id.IsNull() {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "request id must not be null"}
	}

	return &Message{Kind: KindRequest, Method: raw.Method, Params: raw.Params, ID: id}, nil
}

// ParseResponse parses a single inbound frame as a success or error
// response.
func ParseResponse(data []byte) (*Message, error) {
	raw, err := decodeWire(data)
	if err != nil {
		return nil, err
	}

	if raw.hasMethod {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "expected response, got request or notification"}
	}
	if raw.hasResult == raw.hasError {
		if raw.hasResult {
			return nil, &ParseError{Code: CodeInvalidRequest, Msg: "response carries both result and error"}
		}
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: "response carries neither result nor error"}
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return nil, err
	}

	msg := &Message{Kind: KindResponse, ID: id}
	if raw.hasResult {
		msg.Result = raw.Result
	} else {
		msg.Error = raw.Error
	}
	return msg, nil
}

func decodeWire(data []byte) (*wireMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ParseError{Code: CodeParseError, Msg: "malformed JSON: " + err.Error()}
	}

	raw := &wireMessage{}
	if v, ok := probe["jsonrpc"]; ok {
		_ = json.Unmarshal(v, &raw.JSONRPC)
	}
	if v, ok := probe["id"]; ok {
		raw.ID = v
		raw.hasID = true
	}
	if v, ok := probe["method"]; ok {
		_ = json.Unmarshal(v, &raw.Method)
		raw.hasMethod = true
	}
	if v, ok := probe["params"]; ok {
		raw.Params = v
	}
	if v, ok := probe["result"]; ok {
		raw.Result = v
		raw.hasResult = true
	}
	if v, ok := probe["error"]; ok {
		var errObj ErrorObject
		if err := json.Unmarshal(v, &errObj); err != nil {
			return nil, &ParseError{Code: CodeInvalidRequest, Msg: "malformed error object"}
		}
		raw.Error = &errObj
		raw.hasError = true
	}

	if raw.JSONRPC != Version {
		return nil, &ParseError{Code: CodeInvalidRequest, Msg: fmt.Sprintf("unsupported jsonrpc version %q", raw.JSONRPC)}
	}

	return raw, nil
}

func decodeID(raw json.RawMessage) (ID, error) {
	if raw == nil || string(raw) == "null" {
		return NullID(), nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		f, err := asNumber.Float64()
		if err != nil {
			return ID{}, &ParseError{Code: CodeInvalidRequest, Msg: "invalid numeric id"}
		}
		if f != math.Trunc(f) {
			return ID{}, &ParseError{Code: CodeInvalidRequest, Msg: "id must not be fractional"}
		}
		return ID{raw: append(json.RawMessage(nil), raw...)}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return NewStringID(asString), nil
	}

	return ID{}, &ParseError{Code: CodeInvalidRequest, Msg: "id must be a string or integer"}
}

// validateParamsShape rejects arrays and primitives as params: only a
// JSON object (or an explicit JSON null, treated as absent) is allowed.
func validateParamsShape(params json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(params, &obj); err != nil {
		if string(params) == "null" {
			return nil
		}
		return &ParseError{Code: CodeInvalidParams, Msg: "params must be a structured object"}
	}
	return nil
}

// Serialize renders a Message to its wire JSON encoding.
func Serialize(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindRequest:
		w := struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.ID, m.Method, m.Params}
		return json.Marshal(w)
	case KindNotification:
		w := struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.Method, m.Params}
		return json.Marshal(w)
	case KindResponse:
		if m.Error != nil {
			w := struct {
				JSONRPC string       `json:"jsonrpc"`
				ID      ID           `json:"id"`
				Error   *ErrorObject `json:"error"`
			}{Version, m.ID, m.Error}
			return json.Marshal(w)
		}
		w := struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Result  json.RawMessage `json:"result"`
		}{Version, m.ID, m.Result}
		return json.Marshal(w)
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message kind %d", m.Kind)
	}
}
