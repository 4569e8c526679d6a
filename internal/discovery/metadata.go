// Package discovery builds the RFC 8414 authorization-server metadata
// and RFC 9728 protected-resource metadata documents, and the
// WWW-Authenticate challenge headers that point clients at them.
// Grounded in the teacher's mock OAuth/protected-resource servers,
// generalized from test-fixture literals into real builders.
package discovery

import "strings"

// ServerMetadata is the RFC 8414 authorization-server metadata document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// BuildOAuthServerMetadata builds the RFC 8414 document for issuer.
func BuildOAuthServerMetadata(issuer string) ServerMetadata {
	return ServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token", "client_credentials"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
	}
}

// ProtectedResourceMetadataOptions configures BuildProtectedResourceMetadata.
type ProtectedResourceMetadataOptions struct {
	ResourceURL             string
	AuthorizationServers     []string
	ScopesSupported          []string // nil or empty uses defaults; WithExplicitEmptyScopes omits the field
	BearerMethodsSupported   []string // nil or empty uses defaults; WithExplicitEmptyBearerMethods omits the field
	scopesExplicitlyEmpty    bool
	bearerMethodsExplicitlyEmpty bool
}

// WithExplicitEmptyScopes marks ScopesSupported as an explicit empty
// array in config, so the emitted document omits the field entirely
// rather than falling back to the default.
func (o ProtectedResourceMetadataOptions) WithExplicitEmptyScopes() ProtectedResourceMetadataOptions {
	o.scopesExplicitlyEmpty = true
	return o
}

// WithExplicitEmptyBearerMethods is the bearer_methods_supported analogue
// of WithExplicitEmptyScopes.
func (o ProtectedResourceMetadataOptions) WithExplicitEmptyBearerMethods() ProtectedResourceMetadataOptions {
	o.bearerMethodsExplicitlyEmpty = true
	return o
}

var defaultScopesSupported = []string{"tools:read", "tools:execute", "logging:write"}
var defaultBearerMethodsSupported = []string{"header"}

// ProtectedResourceMetadata is the RFC 9728 protected-resource metadata
// document. Fields use omitempty so an explicitly empty config list is
// rendered as an absent field rather than `[]`.
type ProtectedResourceMetadata struct {
	Resource                string   `json:"resource"`
	AuthorizationServers    []string `json:"authorization_servers"`
	ScopesSupported         []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported  []string `json:"bearer_methods_supported,omitempty"`
}

// BuildProtectedResourceMetadata builds the RFC 9728 document described
// by opts. Requires a non-empty ResourceURL and at least one
// authorization server.
func BuildProtectedResourceMetadata(opts ProtectedResourceMetadataOptions) (*ProtectedResourceMetadata, error) {
	if opts.ResourceURL == "" {
		return nil, &configError{"resource_url is required"}
	}
	if len(opts.AuthorizationServers) == 0 {
		return nil, &configError{"at least one authorization server is required"}
	}

	meta := &ProtectedResourceMetadata{
		Resource:             opts.ResourceURL,
		AuthorizationServers: opts.AuthorizationServers,
	}

	switch {
	case opts.scopesExplicitlyEmpty:
		// leave nil, field omitted
	case len(opts.ScopesSupported) > 0:
		meta.ScopesSupported = opts.ScopesSupported
	default:
		meta.ScopesSupported = defaultScopesSupported
	}

	switch {
	case opts.bearerMethodsExplicitlyEmpty:
		// leave nil, field omitted
	case len(opts.BearerMethodsSupported) > 0:
		meta.BearerMethodsSupported = opts.BearerMethodsSupported
	default:
		meta.BearerMethodsSupported = defaultBearerMethodsSupported
	}

	return meta, nil
}

// WWWAuthenticateOptions configures BuildWWWAuthenticateHeader.
type WWWAuthenticateOptions struct {
	ResourceMetadataURL string
	Realm               string
	Error               string
	ErrorDescription    string
	Scope               string
}

// BuildWWWAuthenticateHeader assembles an RFC 6750 Bearer challenge
// string with quoted directive values.
func BuildWWWAuthenticateHeader(opts WWWAuthenticateOptions) string {
	var b strings.Builder
	b.WriteString("Bearer")

	directive := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(", " + name + `="` + value + `"`)
	}
	directive("realm", opts.Realm)
	directive("resource_metadata", opts.ResourceMetadataURL)
	directive("error", opts.Error)
	directive("error_description", opts.ErrorDescription)
	directive("scope", opts.Scope)

	return b.String()
}

// Response401 is the status/header/body triple CreateUnauthorizedResponse
// produces.
type Response401 struct {
	Status  int
	Header  string
	Body    map[string]string
}

// CreateUnauthorizedResponse builds the 401 response triple for a
// missing/invalid bearer token.
func CreateUnauthorizedResponse(resourceMetadataURL, errorCode, errorDescription string) Response401 {
	if errorCode == "" {
		errorCode = "unauthorized"
	}
	if errorDescription == "" {
		errorDescription = "Authorization required"
	}

	header := BuildWWWAuthenticateHeader(WWWAuthenticateOptions{
		ResourceMetadataURL: resourceMetadataURL,
		Error:               errorCode,
		ErrorDescription:    errorDescription,
	})

	return Response401{
		Status: 401,
		Header: header,
		Body: map[string]string{
			"error":             errorCode,
			"error_description": errorDescription,
		},
	}
}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
