// Package oauthclient drives the outbound side of OAuth 2.1: building
// authorization URLs, exchanging/refreshing tokens against a remote
// authorization server, caching access tokens per protected resource,
// and verifying externally issued JWTs against a JWKS endpoint.
package oauthclient

import "time"

// TokenResponse is the JSON body returned by a token endpoint, shared
// shape across authorization_code, refresh_token, and client_credentials
// grants.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// StoredToken is a TokenResponse plus the wall-clock expiry computed at
// store time, keyed per protected resource.
type StoredToken struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	Resource     string
	ExpiresAt    time.Time
}

// IsExpired reports whether the token is expired, or will expire within
// buffer of now.
func (t *StoredToken) IsExpired(buffer time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(t.ExpiresAt)
}

// AuthSession is the server-side record created by BuildAuthorizationURL
// and consulted by HandleCallback to validate the returned state and
// retrieve the PKCE verifier.
type AuthSession struct {
	State        string
	CodeVerifier string
	Resources    []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// DefaultSessionTTL is how long an authorization session remains valid
// while the user completes the browser round trip.
const DefaultSessionTTL = 600 * time.Second

// DefaultExpiryBuffer is how far ahead of actual expiry a cached token is
// treated as needing refresh.
const DefaultExpiryBuffer = 60 * time.Second

// DefaultAccessTokenTTL is assumed when a token response omits expires_in.
const DefaultAccessTokenTTL = time.Hour

// AuthorizationURLOptions configures BuildAuthorizationURL.
type AuthorizationURLOptions struct {
	AuthorizationEndpoint string
	ClientID              string
	RedirectURI           string
	Scope                 string
	Resources             []string
	Audience              string
	ExtraParams           map[string]string
}

// CallbackParams are the query parameters a redirect_uri handler receives.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// OAuthError wraps an error code/description returned by an authorization
// or token endpoint.
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}
