package m2m

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAccessToken_BasicAuthPercentEncodesCredentials(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = r.ParseForm()
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "cl ient", ClientSecret: "s@cret"})
	tok, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	require.True(t, strings.HasPrefix(gotAuth, "Basic "))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(gotAuth, "Basic "))
	require.NoError(t, err)
	assert.Equal(t, url.QueryEscape("cl ient")+":"+url.QueryEscape("s@cret"), string(decoded))
}

func TestGetAccessToken_ClientSecretPostIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		assert.Equal(t, "secret-1", r.Form.Get("client_secret"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "client-1", ClientSecret: "secret-1", AuthMethod: AuthMethodClientSecretPost})
	tok, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestGetAccessToken_CachesUntilBuffer(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	for i := 0; i < 3; i++ {
		_, err := c.GetAccessToken(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestGetAccessToken_RefreshesWhenWithinBuffer(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-new", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s", ExpiryBufferSeconds: 3600})
	tok, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", tok)
	assert.Equal(t, 1, calls)

	// Buffer is larger than the token lifetime, so the cache is always
	// considered stale and every call re-requests.
	tok2, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", tok2)
	assert.Equal(t, 2, calls)
}

func TestGetAccessToken_OverridesBypassCache(t *testing.T) {
	calls := 0
	var lastScope string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = r.ParseForm()
		lastScope = r.Form.Get("scope")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-override", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	_, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	tok, err := c.GetAccessToken(context.Background(), &TokenOverrides{Scopes: []string{"override:scope"}})
	require.NoError(t, err)
	assert.Equal(t, "tok-override", tok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "override:scope", lastScope)

	// The override call must not have populated the default cache.
	assert.True(t, c.IsTokenValid())
	cachedTok, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-override", cachedTok) // still the earlier cached default token
	assert.Equal(t, 2, calls)
}

func TestGetAccessToken_ConcurrentDefaultCallsDeduplicated(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-shared", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	results := make(chan string, 5)
	for i := 0; i < 5; i++ {
		go func() {
			tok, err := c.GetAccessToken(context.Background(), nil)
			require.NoError(t, err)
			results <- tok
		}()
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, "tok-shared", <-results)
	}
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestGetAccessToken_OAuthErrorMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client", "error_description": "unknown client"})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	_, err := c.GetAccessToken(context.Background(), nil)
	var m2mErr *M2MAuthError
	require.ErrorAs(t, err, &m2mErr)
	assert.Equal(t, "invalid_client", m2mErr.Code)
}

func TestGetAccessToken_NonOAuthErrorMapsToServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	_, err := c.GetAccessToken(context.Background(), nil)
	var m2mErr *M2MAuthError
	require.ErrorAs(t, err, &m2mErr)
	assert.Equal(t, "server_error", m2mErr.Code)
}

func TestClearCache_ForcesRefetch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-1", ExpiresIn: 3600})
	}))
	defer srv.Close()

	c := NewClient(Config{TokenEndpoint: srv.URL, ClientID: "c", ClientSecret: "s"})
	_, err := c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)

	c.ClearCache()
	assert.False(t, c.IsTokenValid())

	_, err = c.GetAccessToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetConfig_RedactsSecret(t *testing.T) {
	c := NewClient(Config{TokenEndpoint: "https://as.example.com/token", ClientID: "c", ClientSecret: "super-secret"})
	cfg := c.GetConfig()
	assert.Empty(t, cfg.ClientSecret)
	assert.Equal(t, "c", cfg.ClientID)
}

func TestGetTokenExpiration_ZeroWhenUncached(t *testing.T) {
	c := NewClient(Config{TokenEndpoint: "https://as.example.com/token", ClientID: "c", ClientSecret: "s"})
	assert.True(t, c.GetTokenExpiration().IsZero())
}
