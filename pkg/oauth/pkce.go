package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// pkceAlphabet is the RFC 7636 unreserved character set a code verifier
// may be drawn from: "A-Z a-z 0-9 - . _ ~".
const pkceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	minVerifierLength   = 43
	maxVerifierLength   = 128
	defaultVerifierLen  = 64
	stateBytes          = 32
)

// GenerateVerifier returns a cryptographically random code verifier of the
// given length, drawn from the PKCE unreserved alphabet. length must fall
// in [43, 128]; 0 selects the default of 64.
func GenerateVerifier(length int) (string, error) {
	if length == 0 {
		length = defaultVerifierLen
	}
	if length < minVerifierLength || length > maxVerifierLength {
		return "", fmt.Errorf("oauth: verifier length %d outside allowed range [%d, %d]", length, minVerifierLength, maxVerifierLength)
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	out := make([]byte, length)
	for i, b := range raw {
		out[i] = pkceAlphabet[int(b)%len(pkceAlphabet)]
	}
	return string(out), nil
}

// GenerateChallenge computes the S256 code challenge for a verifier,
// rejecting verifiers outside the allowed length or alphabet.
func GenerateChallenge(verifier string) (string, error) {
	if err := validateVerifier(verifier); err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:]), nil
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge,
// ready for use in an authorization request.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, err := GenerateVerifier(0)
	if err != nil {
		return nil, err
	}
	challenge, err := GenerateChallenge(verifier)
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// Verify checks a code verifier against a previously issued challenge.
// Only method "S256" is supported; "plain" and anything else is rejected.
// Comparison is constant-time over equal-length encodings; mismatched
// lengths short-circuit to false.
func Verify(verifier, challenge, method string) bool {
	if method != "S256" {
		return false
	}
	computed, err := GenerateChallenge(verifier)
	if err != nil {
		return false
	}
	if len(computed) != len(challenge) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func validateVerifier(verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return fmt.Errorf("verifier length %d outside allowed range [%d, %d]", len(verifier), minVerifierLength, maxVerifierLength)
	}
	for i := 0; i < len(verifier); i++ {
		if !isPKCEChar(verifier[i]) {
			return fmt.Errorf("verifier contains disallowed character %q", verifier[i])
		}
	}
	return nil
}

func isPKCEChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	default:
		return false
	}
}

// GenerateState generates a random 256-bit, base64url-encoded state
// parameter for OAuth CSRF protection.
func GenerateState() (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateNonce generates a random nonce for OAuth/OIDC, typically used
// for ID token validation.
func GenerateNonce() (string, error) {
	return GenerateState()
}
