package oauthclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/mcpref/internal/logging"
)

// ErrNoToken is returned by GetValidAccessToken when nothing is cached
// for the resource yet.
var ErrNoToken = errors.New("oauthclient: no_token")

// ErrTokenExpired is returned when a cached token is past expiry and a
// refresh attempt failed or was unavailable.
var ErrTokenExpired = errors.New("oauthclient: token_expired")

// refreshFunc performs the actual refresh_token grant against the
// authorization server; Client.exchangeOrRefresh implements it.
type refreshFunc func(ctx context.Context, resource string, cached *StoredToken) (*TokenResponse, error)

// TokenManager caches access tokens per protected resource and
// deduplicates concurrent refreshes for the same resource via
// singleflight, so a burst of requests against an expiring token
// triggers exactly one refresh_token grant.
type TokenManager struct {
	mu     sync.RWMutex
	tokens map[string]*StoredToken

	buffer  time.Duration
	refresh refreshFunc
	group   singleflight.Group
}

// NewTokenManager builds a TokenManager backed by refresh, the
// authorization server's refresh_token grant implementation.
func NewTokenManager(refresh refreshFunc) *TokenManager {
	return &TokenManager{
		tokens:  make(map[string]*StoredToken),
		buffer:  DefaultExpiryBuffer,
		refresh: refresh,
	}
}

// StoreToken records tok under resource, overwriting any prior entry.
func (m *TokenManager) StoreToken(resource string, tok *StoredToken) {
	m.mu.Lock()
	m.tokens[resource] = tok
	m.mu.Unlock()
}

// Clear removes the cached token for resource, if any.
func (m *TokenManager) Clear(resource string) {
	m.mu.Lock()
	delete(m.tokens, resource)
	m.mu.Unlock()
}

func (m *TokenManager) get(resource string) *StoredToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[resource]
}

// GetValidAccessToken returns a non-expiring-soon access token for
// resource, refreshing it first if the cached token is within buffer of
// expiry. Concurrent callers for the same resource share one refresh.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, resource string) (string, error) {
	cached := m.get(resource)
	if cached == nil {
		return "", ErrNoToken
	}
	if !cached.IsExpired(m.buffer) {
		return cached.AccessToken, nil
	}

	result, err, _ := m.group.Do(resource, func() (interface{}, error) {
		// Re-check: another caller may have already refreshed while we
		// waited to acquire the singleflight slot.
		current := m.get(resource)
		if current != nil && !current.IsExpired(m.buffer) {
			return current.AccessToken, nil
		}

		resp, refreshErr := m.refresh(ctx, resource, current)
		if refreshErr != nil {
			var oerr *OAuthError
			if errors.As(refreshErr, &oerr) && oerr.Code == "invalid_grant" {
				m.Clear(resource)
			}
			return nil, fmt.Errorf("%w: %s", ErrTokenExpired, refreshErr)
		}

		refreshed := storedTokenFromResponse(resp, resource)
		if refreshed.RefreshToken == "" && current != nil {
			refreshed.RefreshToken = current.RefreshToken
		}
		m.StoreToken(resource, refreshed)
		return refreshed.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// IntrospectionClient performs RFC 7662 token introspection with
// optional client-credential basic auth.
type IntrospectionClient struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	httpClient   *http.Client
}

// NewIntrospectionClient builds an IntrospectionClient against endpoint.
func NewIntrospectionClient(endpoint, clientID, clientSecret string) *IntrospectionClient {
	return &IntrospectionClient{
		Endpoint:     endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// IntrospectionResult is the parsed RFC 7662 response body.
type IntrospectionResult struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Subject  string `json:"sub,omitempty"`
}

// Introspect posts token (and optional hint) to the introspection
// endpoint and returns the parsed result.
func (ic *IntrospectionClient) Introspect(ctx context.Context, token, hint string) (*IntrospectionResult, error) {
	data := url.Values{"token": {token}}
	if hint != "" {
		data.Set("token_type_hint", hint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ic.Endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ic.ClientID != "" {
		req.Header.Set("Authorization", "Basic "+basicAuthValue(ic.ClientID, ic.ClientSecret))
	}

	resp, err := ic.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug("OAuthClient", "introspection endpoint returned status=%d", resp.StatusCode)
		return nil, fmt.Errorf("oauthclient: introspection failed with status %d", resp.StatusCode)
	}

	var result IntrospectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("oauthclient: parse introspection response: %w", err)
	}
	return &result, nil
}

func basicAuthValue(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

// Stop is a no-op placeholder kept for symmetry with Client.Stop; the
// token manager owns no background goroutines of its own.
func (m *TokenManager) Stop() {}
