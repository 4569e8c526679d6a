package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	assert.NotNil(t, c.httpClient)
	assert.NotNil(t, c.logger)
	assert.NotNil(t, c.metadataCache)
	assert.Equal(t, DefaultMetadataCacheTTL, c.metadataTTL)
}

func TestNewClient_AppliesOptions(t *testing.T) {
	customHTTP := &http.Client{Timeout: 10 * time.Second}
	customTTL := 5 * time.Minute

	c := NewClient(WithHTTPClient(customHTTP), WithMetadataCacheTTL(customTTL))

	assert.Same(t, customHTTP, c.httpClient)
	assert.Equal(t, customTTL, c.metadataTTL)
}

func TestDiscoverMetadata_RFC8414(t *testing.T) {
	metadata := &Metadata{
		Issuer:                "https://issuer.example.com",
		AuthorizationEndpoint: "https://issuer.example.com/authorize",
		TokenEndpoint:         "https://issuer.example.com/token",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/oauth-authorization-server" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(metadata)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient()
	got, err := c.DiscoverMetadata(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, metadata.TokenEndpoint, got.TokenEndpoint)
}

func TestDiscoverMetadata_FallsBackToOIDC(t *testing.T) {
	metadata := &Metadata{Issuer: "https://issuer.example.com", TokenEndpoint: "https://issuer.example.com/token"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/openid-configuration" {
			json.NewEncoder(w).Encode(metadata)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient()
	got, err := c.DiscoverMetadata(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, metadata.TokenEndpoint, got.TokenEndpoint)
}

func TestDiscoverMetadata_CachesResult(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		json.NewEncoder(w).Encode(&Metadata{Issuer: r.Host})
	}))
	defer server.Close()

	c := NewClient()
	_, err := c.DiscoverMetadata(context.Background(), server.URL)
	require.NoError(t, err)
	_, err = c.DiscoverMetadata(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestDiscoverMetadata_DeduplicatesConcurrentFetches(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(&Metadata{Issuer: r.Host})
	}))
	defer server.Close()

	c := NewClient()
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = c.DiscoverMetadata(context.Background(), server.URL)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestExchangeCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "abc123", r.Form.Get("code"))
		json.NewEncoder(w).Encode(&Token{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600})
	}))
	defer server.Close()

	c := NewClient()
	tok, err := c.ExchangeCode(context.Background(), server.URL, "abc123", "https://client/cb", "client-1", "verifier", "")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
	assert.False(t, tok.ExpiresAt.IsZero())
}

func TestExchangeCode_MapsOAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(&OAuthError{ErrorCode: "invalid_grant", Description: "code already used"})
	}))
	defer server.Close()

	c := NewClient()
	_, err := c.ExchangeCode(context.Background(), server.URL, "used-code", "https://client/cb", "client-1", "verifier", "")
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "invalid_grant", oauthErr.ErrorCode)
}

func TestRefreshToken_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(&Token{AccessToken: "new-tok", ExpiresIn: 3600})
	}))
	defer server.Close()

	c := NewClient()
	tok, err := c.RefreshToken(context.Background(), server.URL, "rt-1", "client-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "new-tok", tok.AccessToken)
}

func TestBuildAuthorizationURL(t *testing.T) {
	c := NewClient()
	pkce, err := GeneratePKCE()
	require.NoError(t, err)

	authURL, err := c.BuildAuthorizationURL(AuthorizationURLOptions{
		AuthEndpoint: "https://issuer.example.com/authorize",
		ClientID:     "client-1",
		RedirectURI:  "https://client/cb",
		State:        "state-1",
		Scope:        "read write",
		PKCE:         pkce,
		Resources:    []string{"https://api.example.com", "https://other.example.com"},
	})
	require.NoError(t, err)

	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "client_id=client-1")
	assert.Contains(t, authURL, "code_challenge="+pkce.CodeChallenge)
	assert.Contains(t, authURL, "resource=https%3A%2F%2Fapi.example.com")
	assert.Contains(t, authURL, "resource=https%3A%2F%2Fother.example.com")
}

func TestClearMetadataCache(t *testing.T) {
	c := NewClient()
	c.metadataCache["issuer"] = &metadataCacheEntry{metadata: &Metadata{}, fetchedAt: time.Now()}
	c.ClearMetadataCache()
	assert.Empty(t, c.metadataCache)
}
