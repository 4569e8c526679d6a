// Package scope implements RFC 6750 scope-string parsing, inheritance,
// and the method-to-required-scope policy table that gates JSON-RPC
// dispatch, in the teacher's constant-table style (see
// internal/config/types.go's static tables).
package scope

import "strings"

// Inheritance table: a token holding the key scope also satisfies every
// scope in its value set. Tool-specific scopes (prefix "tool:") are
// deliberately absent here: they never inherit.
var inheritance = map[string][]string{
	"admin": {"write", "read"},
	"write": {"read"},
}

// ToolScopePrefix prefixes a tool name to build its dedicated,
// non-inheriting scope string.
const ToolScopePrefix = "tool:"

// Default method policy: maps a JSON-RPC method to the scopes a token
// must satisfy (via ParseScopes + HasScopeWithInheritance) to invoke it.
// Methods absent from the table require no scope.
var defaultMethodPolicy = map[string][]string{
	"tools/list":            {"read"},
	"tools/call":            {"write"},
	"resources/list":        {"read"},
	"resources/read":        {"read"},
	"resources/subscribe":   {"write"},
	"resources/unsubscribe": {"write"},
	"prompts/list":          {"read"},
	"prompts/get":           {"read"},
	"completion/complete":   {"read"},
	"logging/setLevel":      {"write"},
	"server/shutdown":       {"admin"},
}

// ParseScopes splits a space-separated scope string, filtering empty
// entries. Round-trips with ScopesToString for any well-formed input.
func ParseScopes(s string) []string {
	fields := strings.Fields(s)
	scopes := make([]string, 0, len(fields))
	scopes = append(scopes, fields...)
	return scopes
}

// ScopesToString joins scopes back into a single space-separated string.
func ScopesToString(scopes []string) string {
	return strings.Join(scopes, " ")
}

// HasScopeWithInheritance reports whether tokenScopes satisfies required,
// either directly or through the inheritance table.
func HasScopeWithInheritance(tokenScopes []string, required string) bool {
	for _, s := range tokenScopes {
		if s == required {
			return true
		}
		for _, implied := range inheritance[s] {
			if implied == required {
				return true
			}
		}
	}
	return false
}

// CheckResult is the outcome of CheckScopes.
type CheckResult struct {
	Allowed bool
	Missing []string
	Message string
}

// CheckScopes reports whether tokenScopes satisfies every scope in
// required, under inheritance.
func CheckScopes(tokenScopes []string, required []string) CheckResult {
	var missing []string
	for _, r := range required {
		if !HasScopeWithInheritance(tokenScopes, r) {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return CheckResult{Allowed: true}
	}
	return CheckResult{
		Allowed: false,
		Missing: missing,
		Message: "missing required scope(s): " + strings.Join(missing, ", "),
	}
}

// Policy holds a method-to-required-scopes table, defaulting to
// defaultMethodPolicy and overridable per entry.
type Policy struct {
	table map[string][]string
}

// NewPolicy builds a Policy starting from the default table. overrides
// replaces individual entries while leaving the rest of the defaults in
// place.
func NewPolicy(overrides map[string][]string) *Policy {
	table := make(map[string][]string, len(defaultMethodPolicy))
	for method, scopes := range defaultMethodPolicy {
		table[method] = scopes
	}
	for method, scopes := range overrides {
		table[method] = scopes
	}
	return &Policy{table: table}
}

// RequiredScopes returns the configured required scopes for method, and
// an additional tool-specific scope when method is "tools/call" and
// toolName is non-empty.
func (p *Policy) RequiredScopes(method, toolName string) []string {
	required := append([]string(nil), p.table[method]...)
	if method == "tools/call" && toolName != "" {
		required = append(required, ToolScopePrefix+toolName)
	}
	return required
}

// InsufficientScopeError signals that a token's scopes did not satisfy a
// method's policy.
type InsufficientScopeError struct {
	Required []string
	Actual   []string
	Message  string
}

func (e *InsufficientScopeError) Error() string {
	return e.Message
}

// ValidateMethodAccess checks tokenScopes against method's policy
// (including a tool-specific scope for tools/call), returning an
// InsufficientScopeError when access is denied.
func (p *Policy) ValidateMethodAccess(tokenScopes []string, method, toolName string) *InsufficientScopeError {
	required := p.RequiredScopes(method, toolName)
	result := CheckScopes(tokenScopes, required)
	if result.Allowed {
		return nil
	}
	return &InsufficientScopeError{
		Required: required,
		Actual:   tokenScopes,
		Message:  result.Message,
	}
}

// WWWAuthenticateHeader builds an RFC 6750 Bearer challenge for an
// insufficient-scope failure.
func (e *InsufficientScopeError) WWWAuthenticateHeader(resourceMetadataURL string) string {
	var b strings.Builder
	b.WriteString("Bearer")
	if resourceMetadataURL != "" {
		b.WriteString(` resource_metadata="` + resourceMetadataURL + `"`)
	}
	b.WriteString(`, error="insufficient_scope"`)
	if len(e.Required) > 0 {
		b.WriteString(`, scope="` + ScopesToString(e.Required) + `"`)
	}
	return b.String()
}

// Response403 is the full triple Build403Response produces.
type Response403 struct {
	Status  int
	Headers map[string]string
	Body    map[string]interface{}
}

// Build403Response produces the 403 response triple for err, requiring a
// configured resource metadata URL.
func Build403Response(err *InsufficientScopeError, resourceMetadataURL string) (*Response403, error) {
	if resourceMetadataURL == "" {
		return nil, errConfigMissingResourceMetadata
	}
	return &Response403{
		Status: 403,
		Headers: map[string]string{
			"WWW-Authenticate": err.WWWAuthenticateHeader(resourceMetadataURL),
			"Content-Type":     "application/json",
		},
		Body: map[string]interface{}{
			"error":             "insufficient_scope",
			"error_description": err.Message,
			"required_scope":    ScopesToString(err.Required),
		},
	}, nil
}

var errConfigMissingResourceMetadata = &configError{"resource_metadata_url is not configured"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
