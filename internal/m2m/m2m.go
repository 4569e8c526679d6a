// Package m2m implements a client-credentials machine-to-machine OAuth
// client: a single cached access token per configuration, refreshed on
// expiry and deduplicated under concurrent load via singleflight.
package m2m

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/mcpref/internal/logging"
)

// AuthMethod selects how client credentials are presented to the token
// endpoint.
type AuthMethod string

const (
	AuthMethodClientSecretBasic AuthMethod = "client_secret_basic"
	AuthMethodClientSecretPost  AuthMethod = "client_secret_post"
)

// DefaultExpiryBufferSeconds is used when Config.ExpiryBufferSeconds is 0.
const DefaultExpiryBufferSeconds = 60

// DefaultExpiresInSeconds is assumed when a token response omits expires_in.
const DefaultExpiresInSeconds = 3600

// Config describes a single client-credentials registration.
type Config struct {
	TokenEndpoint       string
	ClientID            string
	ClientSecret        string
	AuthMethod          AuthMethod
	Scopes              []string
	Audience            string
	ExpiryBufferSeconds int
}

// M2MAuthError is raised when the token endpoint rejects the request or
// responds with a non-OAuth error.
type M2MAuthError struct {
	Code        string
	Description string
	URI         string
}

func (e *M2MAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("m2m: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("m2m: %s", e.Code)
}

// TokenOverrides narrows an individual GetAccessToken call's scopes or
// audience; supplying either bypasses the cache entirely.
type TokenOverrides struct {
	Scopes   []string
	Audience string
}

func (o TokenOverrides) isZero() bool {
	return len(o.Scopes) == 0 && o.Audience == ""
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Client caches one access token for its Config and refreshes it
// transparently on expiry.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu    sync.RWMutex
	token *cachedToken

	group singleflight.Group
}

// NewClient builds a Client for cfg. AuthMethod defaults to
// client_secret_basic and ExpiryBufferSeconds to 60 when unset.
func NewClient(cfg Config) *Client {
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthMethodClientSecretBasic
	}
	if cfg.ExpiryBufferSeconds == 0 {
		cfg.ExpiryBufferSeconds = DefaultExpiryBufferSeconds
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccessToken returns a cached token if valid, otherwise requests a
// fresh one. Supplying overrides always bypasses and skips the cache.
func (c *Client) GetAccessToken(ctx context.Context, overrides *TokenOverrides) (string, error) {
	if overrides != nil && !overrides.isZero() {
		resp, err := c.requestToken(ctx, overrides.Scopes, overrides.Audience)
		if err != nil {
			return "", err
		}
		return resp.AccessToken, nil
	}

	if tok := c.getCached(); tok != nil {
		return tok.accessToken, nil
	}

	result, err, _ := c.group.Do("default", func() (interface{}, error) {
		if tok := c.getCached(); tok != nil {
			return tok.accessToken, nil
		}
		resp, reqErr := c.requestToken(ctx, c.cfg.Scopes, c.cfg.Audience)
		if reqErr != nil {
			return nil, reqErr
		}
		ttl := DefaultExpiresInSeconds
		if resp.ExpiresIn > 0 {
			ttl = resp.ExpiresIn
		}
		c.mu.Lock()
		c.token = &cachedToken{accessToken: resp.AccessToken, expiresAt: time.Now().Add(time.Duration(ttl) * time.Second)}
		c.mu.Unlock()
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) getCached() *cachedToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	buffer := time.Duration(c.cfg.ExpiryBufferSeconds) * time.Second
	if time.Now().Add(buffer).After(c.token.expiresAt) {
		return nil
	}
	return c.token
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

func (c *Client) requestToken(ctx context.Context, scopes []string, audience string) (*tokenResponse, error) {
	data := url.Values{"grant_type": {"client_credentials"}}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
	if audience != "" {
		data.Set("audience", audience)
	}

	var authHeader string
	switch c.cfg.AuthMethod {
	case AuthMethodClientSecretPost:
		data.Set("client_id", c.cfg.ClientID)
		data.Set("client_secret", c.cfg.ClientSecret)
	default:
		authHeader = basicAuthHeader(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &M2MAuthError{Code: "server_error", Description: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &M2MAuthError{Code: "server_error", Description: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
			URI         string `json:"error_uri"`
		}
		if jsonErr := json.Unmarshal(body, &oauthErr); jsonErr == nil && oauthErr.Error != "" {
			logging.Debug("M2M", "token endpoint returned oauth error=%s", oauthErr.Error)
			return nil, &M2MAuthError{Code: oauthErr.Error, Description: oauthErr.Description, URI: oauthErr.URI}
		}
		return nil, &M2MAuthError{Code: "server_error", Description: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &M2MAuthError{Code: "server_error", Description: "malformed token response"}
	}
	return &tok, nil
}

// basicAuthHeader percent-encodes client_id and client_secret per RFC
// 6749 §2.3.1 before base64-encoding the "id:secret" pair, since the
// naive net/http.Request.SetBasicAuth does not perform that encoding
// step and would mis-escape credentials containing reserved characters.
func basicAuthHeader(clientID, clientSecret string) string {
	encoded := url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(encoded))
}

// IsTokenValid reports whether a cached token currently satisfies the
// expiry buffer.
func (c *Client) IsTokenValid() bool {
	return c.getCached() != nil
}

// GetTokenExpiration returns the cached token's expiry, or the zero
// value if nothing is cached.
func (c *Client) GetTokenExpiration() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return time.Time{}
	}
	return c.token.expiresAt
}

// ClearCache discards the cached token, forcing the next GetAccessToken
// call to request a fresh one.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// GetConfig returns the client's configuration with the secret
// redacted.
func (c *Client) GetConfig() Config {
	cfg := c.cfg
	cfg.ClientSecret = ""
	return cfg
}
