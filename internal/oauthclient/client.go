package oauthclient

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/pkg/oauth"
)

// Endpoints are the authorization server URLs a Client talks to.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	IntrospectionEndpoint string
}

// Client drives the outbound authorization_code flow against a single
// authorization server: building authorize URLs, validating callbacks,
// and exchanging/refreshing tokens. Token caching is delegated to an
// embedded TokenManager.
type Client struct {
	Endpoints    Endpoints
	ClientID     string
	ClientSecret string
	RedirectURI  string

	httpClient *http.Client
	sessions   *SessionStore
	Tokens     *TokenManager
}

// NewClient builds a Client with its own session store and token
// manager. Callers must call Stop when the client is no longer needed.
func NewClient(endpoints Endpoints, clientID, clientSecret, redirectURI string) *Client {
	c := &Client{
		Endpoints:    endpoints,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		sessions:     NewSessionStore(time.Minute),
	}
	c.Tokens = NewTokenManager(c.exchangeOrRefresh)
	return c
}

// Stop releases the client's background goroutines.
func (c *Client) Stop() {
	c.sessions.Stop()
	c.Tokens.Stop()
}

// BuildAuthorizationURL composes the authorize endpoint URL with a fresh
// PKCE challenge and state, and returns the URL alongside the session
// state string HandleCallback needs to look up the pending flow.
func (c *Client) BuildAuthorizationURL(opts AuthorizationURLOptions) (string, string, error) {
	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return "", "", fmt.Errorf("oauthclient: generate pkce: %w", err)
	}

	state, err := c.sessions.Create(pkce.Verifier, opts.Resources, DefaultSessionTTL)
	if err != nil {
		return "", "", fmt.Errorf("oauthclient: create session: %w", err)
	}

	authURL, err := url.Parse(opts.AuthorizationEndpoint)
	if err != nil {
		return "", "", fmt.Errorf("oauthclient: invalid authorization endpoint: %w", err)
	}

	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", opts.ClientID)
	q.Set("redirect_uri", opts.RedirectURI)
	q.Set("state", state)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	if opts.Scope != "" {
		q.Set("scope", opts.Scope)
	}
	if opts.Audience != "" {
		q.Set("audience", opts.Audience)
	}
	for _, resource := range opts.Resources {
		q.Add("resource", resource)
	}
	for k, v := range opts.ExtraParams {
		q.Set(k, v)
	}
	authURL.RawQuery = q.Encode()

	return authURL.String(), state, nil
}

// HandleCallback validates the callback state in constant time, then
// exchanges the authorization code for a token pair.
func (c *Client) HandleCallback(ctx context.Context, params CallbackParams) (*StoredToken, error) {
	sess, ok := c.sessions.Consume(params.State)
	if !ok {
		return nil, fmt.Errorf("oauthclient: session_expired")
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, fmt.Errorf("oauthclient: session_expired")
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(sess.State)) != 1 {
		return nil, fmt.Errorf("oauthclient: invalid_state")
	}
	if params.Error != "" {
		return nil, &OAuthError{Code: params.Error, Description: params.ErrorDescription}
	}

	resp, err := c.exchangeCode(ctx, params.Code, sess.CodeVerifier)
	if err != nil {
		return nil, err
	}

	resource := ""
	if len(sess.Resources) > 0 {
		resource = sess.Resources[0]
	}
	stored := storedTokenFromResponse(resp, resource)
	c.Tokens.StoreToken(resource, stored)
	return stored, nil
}

func (c *Client) exchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.RedirectURI)
	data.Set("client_id", c.ClientID)
	data.Set("code_verifier", codeVerifier)
	return c.postTokenRequest(ctx, data)
}

// RefreshToken posts a refresh_token grant, optionally narrowing scope
// or resource, matching the refresh signature TokenManager expects.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string, scope, resource string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.ClientID)
	if scope != "" {
		data.Set("scope", scope)
	}
	if resource != "" {
		data.Set("resource", resource)
	}
	return c.postTokenRequest(ctx, data)
}

// exchangeOrRefresh adapts RefreshToken to the refreshFunc signature
// TokenManager.GetValidAccessToken invokes.
func (c *Client) exchangeOrRefresh(ctx context.Context, resource string, cached *StoredToken) (*TokenResponse, error) {
	if cached == nil || cached.RefreshToken == "" {
		return nil, fmt.Errorf("oauthclient: no refresh token available for resource %q", resource)
	}
	return c.RefreshToken(ctx, cached.RefreshToken, cached.Scope, resource)
}

func (c *Client) postTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoints.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.ClientSecret != "" {
		req.SetBasicAuth(c.ClientID, c.ClientSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &errBody)
		if errBody.Error == "" {
			logging.Debug("OAuthClient", "token endpoint returned status=%d without an OAuth error body", resp.StatusCode)
			return nil, fmt.Errorf("oauthclient: token endpoint returned status %d", resp.StatusCode)
		}
		logging.Debug("OAuthClient", "token endpoint returned status=%d error=%s", resp.StatusCode, errBody.Error)
		return nil, &OAuthError{Code: errBody.Error, Description: errBody.ErrorDescription}
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("oauthclient: parse token response: %w", err)
	}
	return &tok, nil
}

func storedTokenFromResponse(resp *TokenResponse, resource string) *StoredToken {
	ttl := DefaultAccessTokenTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	return &StoredToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
		Resource:     resource,
		ExpiresAt:    time.Now().Add(ttl),
	}
}
