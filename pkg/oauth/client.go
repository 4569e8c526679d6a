package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute
)

// metadataCacheEntry holds cached OAuth metadata with its timestamp.
type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client handles OAuth 2.1 protocol operations.
// It provides metadata discovery, token exchange, and token refresh.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	// Metadata cache with mutex for thread safety
	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// singleflight group to deduplicate concurrent metadata fetches
	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known endpoint.
// It tries RFC 8414 (/.well-known/oauth-authorization-server) first,
// then falls back to OpenID Connect (/.well-known/openid-configuration).
//
// Results are cached with a TTL to reduce network requests.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	// Check cache first with read lock
	c.metadataMu.RLock()
	if entry, ok := c.metadataCache[issuer]; ok {
		if time.Since(entry.fetchedAt) < c.metadataTTL {
			c.metadataMu.RUnlock()
			return entry.metadata, nil
		}
	}
	c.metadataMu.RUnlock()

	// Use singleflight to deduplicate concurrent fetches
	result, err, _ := c.metadataGroup.Do(issuer, func() (interface{}, error) {
		// Double-check cache after acquiring singleflight lock
		c.metadataMu.RLock()
		if entry, ok := c.metadataCache[issuer]; ok {
			if time.Since(entry.fetchedAt) < c.metadataTTL {
				c.metadataMu.RUnlock()
				return entry.metadata, nil
			}
		}
		c.metadataMu.RUnlock()

		return c.doDiscoverMetadata(ctx, issuer)
	})

	if err != nil {
		return nil, err
	}

	return result.(*Metadata), nil
}

// doDiscoverMetadata performs the actual HTTP fetch for OAuth metadata.
func (c *Client) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	// Try RFC 8414 first
	wellKnownURL := issuer + "/.well-known/oauth-authorization-server"
	metadata, err := c.fetchMetadata(ctx, wellKnownURL)
	if err == nil {
		c.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	c.logger.Debug("RFC 8414 metadata fetch failed, trying OIDC",
		"issuer", issuer,
		"error", err)

	// Fall back to OpenID Connect discovery
	wellKnownURL = issuer + "/.well-known/openid-configuration"
	metadata, err = c.fetchMetadata(ctx, wellKnownURL)
	if err == nil {
		c.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, err)
}

// fetchMetadata fetches metadata from a specific URL.
func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata Metadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &metadata, nil
}

// cacheMetadata stores metadata in the cache.
func (c *Client) cacheMetadata(issuer string, metadata *Metadata) {
	c.metadataMu.Lock()
	c.metadataCache[issuer] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: time.Now(),
	}
	c.metadataMu.Unlock()

	c.logger.Debug("Cached OAuth metadata",
		"issuer", issuer,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint)
}

// ExchangeCode exchanges an authorization code for tokens (RFC 8707
// resource indicators included when resource is non-empty).
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint, code, redirectURI, clientID, codeVerifier, resource string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"code_verifier": {codeVerifier},
	}
	if resource != "" {
		data.Set("resource", resource)
	}

	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// RefreshToken obtains a new access token using a refresh token.
func (c *Client) RefreshToken(ctx context.Context, tokenEndpoint, refreshToken, clientID string, scopes []string, resource string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
	if resource != "" {
		data.Set("resource", resource)
	}

	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// Introspect implements RFC 7662 token introspection. basicAuthClientID
// and basicAuthSecret are optional; when both are set the request is
// authenticated with HTTP Basic auth.
func (c *Client) Introspect(ctx context.Context, introspectionEndpoint, token, tokenTypeHint, basicAuthClientID, basicAuthSecret string) (map[string]interface{}, error) {
	data := url.Values{"token": {token}}
	if tokenTypeHint != "" {
		data.Set("token_type_hint", tokenTypeHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectionEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basicAuthClientID != "" && basicAuthSecret != "" {
		req.SetBasicAuth(basicAuthClientID, basicAuthSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read introspection response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection failed with status %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}
	return result, nil
}

// doTokenRequest performs a token endpoint request, mapping a well-formed
// OAuth JSON error body to *OAuthError and anything else to a generic
// error carrying the HTTP status.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr OAuthError
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.ErrorCode != "" {
			c.logger.Debug("token request rejected", "status", resp.StatusCode, "error", oauthErr.ErrorCode)
			return nil, &oauthErr
		}
		c.logger.Debug("token request failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// AuthorizationURLOptions configures BuildAuthorizationURL.
type AuthorizationURLOptions struct {
	AuthEndpoint string
	ClientID     string
	RedirectURI  string
	State        string
	Scope        string
	PKCE         *PKCEChallenge
	Audience     string
	Resources    []string // RFC 8707, one "resource" query parameter per entry
	Extra        map[string]string
}

// BuildAuthorizationURL constructs an OAuth authorization URL from the
// given options.
func (c *Client) BuildAuthorizationURL(opts AuthorizationURLOptions) (string, error) {
	authURL, err := url.Parse(opts.AuthEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", opts.ClientID)
	query.Set("redirect_uri", opts.RedirectURI)
	query.Set("state", opts.State)

	if opts.Scope != "" {
		query.Set("scope", opts.Scope)
	}
	if opts.Audience != "" {
		query.Set("audience", opts.Audience)
	}
	if opts.PKCE != nil {
		query.Set("code_challenge", opts.PKCE.CodeChallenge)
		query.Set("code_challenge_method", opts.PKCE.CodeChallengeMethod)
	}
	for k, v := range opts.Extra {
		query.Set(k, v)
	}

	authURL.RawQuery = query.Encode()

	for _, resource := range opts.Resources {
		authURL.RawQuery += "&resource=" + url.QueryEscape(resource)
	}

	return authURL.String(), nil
}

// ClearMetadataCache clears the metadata cache.
// Useful for testing or when metadata needs to be refreshed immediately.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}
