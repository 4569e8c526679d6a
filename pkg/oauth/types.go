package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the buffer subtracted from a token's expiry when
// deciding whether it is still usable; it absorbs clock skew and the
// latency of the call about to use the token.
const DefaultExpiryMargin = 60 * time.Second

// Token is a normalized OAuth token response, independent of which grant
// produced it.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`

	// ExpiresAt is computed once at storage time from ExpiresIn and is not
	// part of the wire response.
	ExpiresAt time.Time `json:"-"`

	Scope   string `json:"scope,omitempty"`
	Issuer  string `json:"issuer,omitempty"`
	IDToken string `json:"id_token,omitempty"`

	// Resource is the RFC 8707 resource indicator this token is valid for,
	// "" for the unscoped default resource.
	Resource string `json:"-"`

	// StoredAt records when this entry entered the token cache.
	StoredAt time.Time `json:"-"`
}

// IsExpired reports whether the token has expired, or will within
// DefaultExpiryMargin.
func (t *Token) IsExpired() bool {
	return t.IsExpiredWithMargin(DefaultExpiryMargin)
}

// IsExpiredWithMargin reports whether the token has expired, or will
// within the given margin. A zero ExpiresAt means the token never expires.
func (t *Token) IsExpiredWithMargin(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// SetExpiresAtFromExpiresIn computes ExpiresAt from ExpiresIn (defaulting
// to one hour when ExpiresIn is unset), relative to now.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if t.ExpiresAt.IsZero() {
		seconds := t.ExpiresIn
		if seconds <= 0 {
			seconds = 3600
		}
		t.ExpiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
	}
}

// Scopes splits Scope on whitespace into individual scope tokens.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the Token to an oauth2.Token for callers that
// want to hand it to golang.org/x/oauth2-based HTTP clients.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// Metadata is OAuth 2.0 Authorization Server Metadata, RFC 8414.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JwksURI                           string   `json:"jwks_uri,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
}

// SupportsPKCE reports whether the server advertises S256 PKCE support,
// assuming support when the metadata is silent (the OAuth 2.1 default).
func (m *Metadata) SupportsPKCE() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

// ProtectedResourceMetadata is RFC 9728 OAuth 2.0 Protected Resource
// Metadata.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// AuthChallenge is the parsed content of a WWW-Authenticate response
// header, sufficient to locate and begin an OAuth flow against the
// issuer that rejected a request.
type AuthChallenge struct {
	Scheme              string
	Realm               string
	Issuer              string
	ResourceMetadataURL string
	Scope               string
	Error               string
	ErrorDescription    string
}

// IsOAuthChallenge reports whether this challenge names the Bearer scheme
// and carries enough information to locate an authorization server.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	if !strings.EqualFold(c.Scheme, "Bearer") {
		return false
	}
	return c.Realm != "" || c.ResourceMetadataURL != "" || c.Issuer != ""
}

// GetIssuer returns the challenge's OAuth issuer, preferring an explicit
// Issuer and falling back to Realm when it looks like a URL.
func (c *AuthChallenge) GetIssuer() string {
	if c == nil {
		return ""
	}
	if c.Issuer != "" {
		return c.Issuer
	}
	if strings.HasPrefix(c.Realm, "http://") || strings.HasPrefix(c.Realm, "https://") {
		return c.Realm
	}
	return ""
}

// ClientMetadata is OAuth 2.0 Dynamic Client Registration metadata,
// RFC 7591, used both for registering confidential clients and for
// serving Client ID Metadata Documents.
type ClientMetadata struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// OAuthError is a structured OAuth error response body (RFC 6749 §5.2).
type OAuthError struct {
	ErrorCode   string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.ErrorCode + ": " + e.Description
	}
	return e.ErrorCode
}
