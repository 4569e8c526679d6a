package oauthclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	eBytes := []byte{byte(key.PublicKey.E >> 16), byte(key.PublicKey.E >> 8), byte(key.PublicKey.E)}
	e := base64.RawURLEncoding.EncodeToString(eBytes)

	doc := jwksDocument{Keys: []jwk{{Kty: "RSA", Kid: kid, N: n, E: e}}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func signTestJWT(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyJWT_ValidToken(t *testing.T) {
	key := generateTestRSAKey(t)
	srv := jwksServer(t, key, "kid-1")
	defer srv.Close()

	claims := jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"aud": "mcp-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := signTestJWT(t, key, "kid-1", claims)

	v := NewJWKSVerifier()
	parsed, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{
		JWKSURI:  srv.URL,
		Issuer:   "https://issuer.example.com",
		Audience: "mcp-api",
	})
	require.NoError(t, err)
	iss, _ := parsed.GetIssuer()
	assert.Equal(t, "https://issuer.example.com", iss)
}

func TestVerifyJWT_ExpiredRejected(t *testing.T) {
	key := generateTestRSAKey(t)
	srv := jwksServer(t, key, "kid-1")
	defer srv.Close()

	token := signTestJWT(t, key, "kid-1", jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})

	v := NewJWKSVerifier()
	_, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{JWKSURI: srv.URL})
	var verr *JWTVerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "expired", verr.Category)
}

func TestVerifyJWT_WrongSigningKeyRejected(t *testing.T) {
	signingKey := generateTestRSAKey(t)
	otherKey := generateTestRSAKey(t)
	srv := jwksServer(t, otherKey, "kid-1")
	defer srv.Close()

	token := signTestJWT(t, signingKey, "kid-1", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	v := NewJWKSVerifier()
	_, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{JWKSURI: srv.URL})
	assert.Error(t, err)
}

func TestVerifyJWT_IssuerMismatchRejected(t *testing.T) {
	key := generateTestRSAKey(t)
	srv := jwksServer(t, key, "kid-1")
	defer srv.Close()

	token := signTestJWT(t, key, "kid-1", jwt.MapClaims{
		"iss": "https://wrong-issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	v := NewJWKSVerifier()
	_, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{JWKSURI: srv.URL, Issuer: "https://issuer.example.com"})
	var verr *JWTVerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "issuer_invalid", verr.Category)
}

func TestVerifyJWT_AudienceMismatchRejected(t *testing.T) {
	key := generateTestRSAKey(t)
	srv := jwksServer(t, key, "kid-1")
	defer srv.Close()

	token := signTestJWT(t, key, "kid-1", jwt.MapClaims{
		"aud": "other-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	v := NewJWKSVerifier()
	_, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{JWKSURI: srv.URL, Audience: "mcp-api"})
	var verr *JWTVerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "audience_invalid", verr.Category)
}

func TestVerifyJWT_CachesKeysAcrossCalls(t *testing.T) {
	key := generateTestRSAKey(t)
	fetches := 0
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	eBytes := []byte{byte(key.PublicKey.E >> 16), byte(key.PublicKey.E >> 8), byte(key.PublicKey.E)}
	e := base64.RawURLEncoding.EncodeToString(eBytes)
	doc := jwksDocument{Keys: []jwk{{Kty: "RSA", Kid: "kid-1", N: n, E: e}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	v := NewJWKSVerifier()
	for i := 0; i < 3; i++ {
		token := signTestJWT(t, key, "kid-1", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
		_, err := v.VerifyJWT(context.Background(), token, VerifyJWTOptions{JWKSURI: srv.URL})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fetches)
}

func TestIntrospectionClient_ParsesActiveResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "token-1", r.Form.Get("token"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(IntrospectionResult{Active: true, Scope: "read", Subject: "user-1"})
	}))
	defer srv.Close()

	ic := NewIntrospectionClient(srv.URL, "client-1", "secret-1")
	result, err := ic.Introspect(context.Background(), "token-1", "access_token")
	require.NoError(t, err)
	assert.True(t, result.Active)
	assert.Equal(t, "user-1", result.Subject)
}
