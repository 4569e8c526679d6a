package oauthserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() *Issuer {
	return NewIssuer("https://auth.example.com", []byte("0123456789abcdef0123456789abcdef"))
}

func TestIssueAccessToken_VerifiesSuccessfully(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken("user-1", "mcp-api", "read write", time.Hour)
	require.NoError(t, err)

	claims, err := issuer.VerifyAccessToken(token, "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "read write", claims.Scope)
}

func TestVerifyAccessToken_AudienceMismatchRejected(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken("user-1", "mcp-api", "read", time.Hour)
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(token, "other-api")
	assert.Error(t, err)
}

func TestVerifyAccessToken_ExpiredRejected(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken("user-1", "mcp-api", "read", -time.Hour)
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(token, "")
	assert.Error(t, err)
}

func TestVerifyAccessToken_WrongKeyRejected(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken("user-1", "mcp-api", "read", time.Hour)
	require.NoError(t, err)

	other := NewIssuer("https://auth.example.com", []byte("different-signing-key-entirely!"))
	_, err = other.VerifyAccessToken(token, "")
	assert.Error(t, err)
}

func TestIssueRefreshToken_HasRefreshType(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueRefreshToken("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := issuer.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRefreshToken_RejectsAccessToken(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.IssueAccessToken("user-1", "mcp-api", "read", time.Hour)
	require.NoError(t, err)

	_, err = issuer.VerifyRefreshToken(token)
	assert.Error(t, err)
}

func TestIssueRefreshToken_UniqueJTIPerCall(t *testing.T) {
	issuer := testIssuer()
	t1, err := issuer.IssueRefreshToken("user-1", time.Hour)
	require.NoError(t, err)
	t2, err := issuer.IssueRefreshToken("user-1", time.Hour)
	require.NoError(t, err)

	c1, err := issuer.VerifyRefreshToken(t1)
	require.NoError(t, err)
	c2, err := issuer.VerifyRefreshToken(t2)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}
