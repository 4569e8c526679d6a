package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 7636 Appendix B test vector.
const (
	rfc7636Verifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfc7636Challenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestGenerateChallenge_RFC7636Vector(t *testing.T) {
	challenge, err := GenerateChallenge(rfc7636Verifier)
	require.NoError(t, err)
	assert.Equal(t, rfc7636Challenge, challenge)
}

func TestVerify_RFC7636Vector(t *testing.T) {
	assert.True(t, Verify(rfc7636Verifier, rfc7636Challenge, "S256"))
}

func TestVerify_WrongVerifierFails(t *testing.T) {
	other, err := GenerateVerifier(0)
	require.NoError(t, err)
	assert.False(t, Verify(other, rfc7636Challenge, "S256"))
}

func TestVerify_PlainMethodRejected(t *testing.T) {
	assert.False(t, Verify(rfc7636Verifier, rfc7636Verifier, "plain"))
}

func TestVerify_UnequalLengthsCompareFalse(t *testing.T) {
	assert.False(t, Verify(rfc7636Verifier, "short", "S256"))
}

func TestGenerateVerifier_DefaultLength(t *testing.T) {
	v, err := GenerateVerifier(0)
	require.NoError(t, err)
	assert.Len(t, v, defaultVerifierLen)
}

func TestGenerateVerifier_RejectsOutOfRangeLength(t *testing.T) {
	_, err := GenerateVerifier(10)
	assert.Error(t, err)

	_, err = GenerateVerifier(200)
	assert.Error(t, err)
}

func TestGenerateVerifier_OnlyAllowedAlphabet(t *testing.T) {
	v, err := GenerateVerifier(128)
	require.NoError(t, err)
	for i := 0; i < len(v); i++ {
		assert.True(t, isPKCEChar(v[i]), "unexpected character %q", v[i])
	}
}

func TestGenerateChallenge_RejectsBadAlphabet(t *testing.T) {
	_, err := GenerateChallenge("not valid! verifier$$$ with spaces and junk chars 0123456789012")
	assert.Error(t, err)
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkce, err := GeneratePKCE()
		require.NoError(t, err)
		assert.False(t, seen[pkce.CodeVerifier], "duplicate verifier generated")
		seen[pkce.CodeVerifier] = true
		assert.Equal(t, "S256", pkce.CodeChallengeMethod)
	}
}

func TestGenerateState_Length(t *testing.T) {
	state, err := GenerateState()
	require.NoError(t, err)
	assert.Len(t, state, 43)
}

func TestGenerateState_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := GenerateState()
		require.NoError(t, err)
		assert.False(t, seen[state], "duplicate state generated")
		seen[state] = true
	}
}
