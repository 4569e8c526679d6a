package oauthclient

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/mcpref/internal/logging"
)

// jwksCacheTTL controls how long a fetched key set is trusted before
// JWKSVerifier re-fetches it; key rotation relies on this, not on kid
// misses alone, since a rotated key can reuse a kid.
const jwksCacheTTL = 15 * time.Minute

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwksCacheEntry struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSVerifier verifies externally issued JWTs against a remote JWKS
// endpoint, caching the fetched key set in the verifier keyed by the JWKS
// URI so repeated verifications against the same issuer don't refetch.
type JWKSVerifier struct {
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]*jwksCacheEntry
}

// NewJWKSVerifier builds a verifier with an empty cache.
func NewJWKSVerifier() *JWKSVerifier {
	return &JWKSVerifier{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      make(map[string]*jwksCacheEntry),
	}
}

// VerifyJWTOptions configures VerifyJWT.
type VerifyJWTOptions struct {
	JWKSURI  string
	Issuer   string
	Audience string
}

// JWTVerificationError classifies why VerifyJWT rejected a token.
type JWTVerificationError struct {
	Category string // "expired", "signature_invalid", "issuer_invalid", "audience_invalid", "invalid"
	Err      error
}

func (e *JWTVerificationError) Error() string {
	return fmt.Sprintf("oauthclient: jwt verification failed (%s): %v", e.Category, e.Err)
}

func (e *JWTVerificationError) Unwrap() error { return e.Err }

// VerifyJWT validates signature, expiration, and (when configured)
// issuer/audience of token against the JWKS at opts.JWKSURI.
func (v *JWKSVerifier) VerifyJWT(ctx context.Context, token string, opts VerifyJWTOptions) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.resolveKey(ctx, opts.JWKSURI, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid {
		return nil, &JWTVerificationError{Category: "invalid", Err: fmt.Errorf("token not valid")}
	}

	if opts.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != opts.Issuer {
			return nil, &JWTVerificationError{Category: "issuer_invalid", Err: fmt.Errorf("issuer mismatch: got %q", iss)}
		}
	}
	if opts.Audience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, opts.Audience) {
			return nil, &JWTVerificationError{Category: "audience_invalid", Err: fmt.Errorf("audience mismatch")}
		}
	}

	return claims, nil
}

func classifyJWTError(err error) *JWTVerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &JWTVerificationError{Category: "expired", Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &JWTVerificationError{Category: "signature_invalid", Err: err}
	default:
		return &JWTVerificationError{Category: "invalid", Err: err}
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func (v *JWKSVerifier) resolveKey(ctx context.Context, jwksURI, kid string) (*rsa.PublicKey, error) {
	keys, err := v.getKeys(ctx, jwksURI)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		// kid may have rotated in; force a refresh once before giving up.
		keys, err = v.fetchAndCache(ctx, jwksURI)
		if err != nil {
			return nil, err
		}
		key, ok = keys[kid]
		if !ok {
			return nil, fmt.Errorf("oauthclient: no jwks key for kid %q", kid)
		}
	}
	return key, nil
}

func (v *JWKSVerifier) getKeys(ctx context.Context, jwksURI string) (map[string]*rsa.PublicKey, error) {
	v.mu.RLock()
	entry, ok := v.cache[jwksURI]
	v.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < jwksCacheTTL {
		return entry.keys, nil
	}
	return v.fetchAndCache(ctx, jwksURI)
}

func (v *JWKSVerifier) fetchAndCache(ctx context.Context, jwksURI string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauthclient: jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("oauthclient: parse jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			logging.Debug("OAuthClient", "skipping malformed jwks key kid=%s: %v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.cache[jwksURI] = &jwksCacheEntry{keys: keys, fetchedAt: time.Now()}
	v.mu.Unlock()

	return keys, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}

	eBuf := make([]byte, 8)
	copy(eBuf[8-len(eBytes):], eBytes)
	e := int(binary.BigEndian.Uint64(eBuf))

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
