// Package authmw provides a bearer-token extraction middleware for the
// inbound HTTP surface: it decodes the JWT payload structurally (no
// signature check) to make {sub, exp, scope, token} available to
// downstream handlers, leaving actual signature verification to
// oauthclient's JWKS-backed verifier when one is configured.
package authmw

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const claimsContextKey contextKey = iota

// Claims is the structurally decoded subset of a bearer token's payload
// attached to the request context on success.
type Claims struct {
	Subject string
	Expiry  time.Time
	Scope   string
	Token   string
}

// ClaimsFromContext retrieves the Claims attached by Middleware, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// SkewTolerance is how far past a token's exp claim the middleware still
// accepts it, to absorb clock drift between issuer and this server.
const SkewTolerance = 60 * time.Second

// Config controls Middleware's behavior.
type Config struct {
	// AllowUnauthenticated lets requests without a bearer token through
	// unmodified instead of returning 401.
	AllowUnauthenticated bool
	// SkipPaths bypasses the middleware entirely for exact path matches,
	// e.g. "/health".
	SkipPaths []string
}

func (c Config) skips(path string) bool {
	for _, p := range c.SkipPaths {
		if p == path {
			return true
		}
	}
	return false
}

// Middleware wraps next, extracting and structurally validating the
// bearer token on every request not in cfg.SkipPaths.
func Middleware(cfg Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.skips(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			if cfg.AllowUnauthenticated {
				next.ServeHTTP(w, r)
				return
			}
			writeUnauthorized(w, "missing Authorization header")
			return
		}

		token, ok := extractBearerToken(header)
		if !ok {
			writeUnauthorized(w, "malformed Authorization header")
			return
		}

		claims, err := decodeClaims(token)
		if err != nil {
			writeUnauthorized(w, "malformed bearer token")
			return
		}

		if !claims.Expiry.IsZero() && time.Now().After(claims.Expiry.Add(SkewTolerance)) {
			writeUnauthorized(w, "token expired")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

type jwtPayload struct {
	Sub   string      `json:"sub"`
	Exp   json.Number `json:"exp"`
	Scope string      `json:"scope"`
}

// decodeClaims splits a JWT into its three dot-separated segments and
// base64url-decodes the payload only; it never inspects the signature.
func decodeClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformed
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}

	var payload jwtPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	claims := &Claims{Subject: payload.Sub, Scope: payload.Scope, Token: token}
	if payload.Exp != "" {
		if secs, err := payload.Exp.Int64(); err == nil {
			claims.Expiry = time.Unix(secs, 0)
		}
	}
	return claims, nil
}

var errMalformed = malformedTokenError{}

type malformedTokenError struct{}

func (malformedTokenError) Error() string { return "authmw: malformed jwt structure" }

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+description+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "invalid_token",
		"error_description": description,
	})
}
