package oauthserver

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is issued for access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// RefreshClaims is issued for refresh tokens; Type is always "refresh"
// and lets VerifyRefreshToken distinguish a refresh JWT from an access
// JWT signed by the same key.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Issuer signs and verifies access/refresh JWTs with a single HMAC key.
type Issuer struct {
	signingKey []byte
	issuer     string
}

// NewIssuer builds an Issuer. signingKey must be non-empty; NewIssuer
// itself does not check the key's length.
func NewIssuer(issuer string, signingKey []byte) *Issuer {
	return &Issuer{signingKey: signingKey, issuer: issuer}
}

// IssueAccessToken produces a signed JWT with claims iss, sub, aud,
// scope, jti, iat, exp.
func (i *Issuer) IssueAccessToken(subject, audience, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signingKey)
}

// IssueRefreshToken produces a signed JWT with type:"refresh" and a
// unique jti.
func (i *Issuer) IssueRefreshToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	jti, err := generateToken()
	if err != nil {
		return "", err
	}
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: "refresh",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signingKey)
}

// VerifyAccessToken validates signature and expiration, and audience
// when expectedAudience is non-empty.
func (i *Issuer) VerifyAccessToken(tokenString, expectedAudience string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("oauthserver: token is not valid")
	}
	if expectedAudience != "" && !containsAudience(claims.Audience, expectedAudience) {
		return nil, fmt.Errorf("oauthserver: audience mismatch")
	}
	return claims, nil
}

// VerifyRefreshToken validates signature, expiration, and that the token
// carries type:"refresh".
func (i *Issuer) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("oauthserver: token is not valid")
	}
	if claims.Type != "refresh" {
		return nil, fmt.Errorf("oauthserver: token is not a refresh token")
	}
	return claims, nil
}

func (i *Issuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("oauthserver: unexpected signing method %v", token.Header["alg"])
	}
	return i.signingKey, nil
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	for _, a := range audience {
		if a == expected {
			return true
		}
	}
	return false
}
