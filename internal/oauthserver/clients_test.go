package oauthserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_ConfidentialClientHashesSecret(t *testing.T) {
	r := NewClientRegistry()
	require.NoError(t, r.Register("client-1", "s3cr3t", []string{"https://app.example.com/callback"}, []string{"authorization_code"}, "client_secret_basic"))

	client, ok := r.Get("client-1")
	require.True(t, ok)
	assert.NotEmpty(t, client.SecretHash)
	assert.NotEqual(t, "s3cr3t", client.SecretHash)
	assert.False(t, client.IsPublic())
}

func TestRegister_PublicClientHasNoSecretHash(t *testing.T) {
	r := NewClientRegistry()
	require.NoError(t, r.Register("client-2", "", []string{"https://app.example.com/callback"}, []string{"authorization_code"}, "none"))

	client, ok := r.Get("client-2")
	require.True(t, ok)
	assert.Empty(t, client.SecretHash)
	assert.True(t, client.IsPublic())
}

func TestGet_UnknownClientNotFound(t *testing.T) {
	r := NewClientRegistry()
	_, ok := r.Get("nonexistent")
	assert.False(t, ok)
}

func TestValidateRedirectURI(t *testing.T) {
	r := NewClientRegistry()
	require.NoError(t, r.Register("client-1", "", []string{"https://app.example.com/callback"}, nil, "none"))
	client, _ := r.Get("client-1")

	assert.True(t, client.ValidateRedirectURI("https://app.example.com/callback"))
	assert.False(t, client.ValidateRedirectURI("https://evil.example.com/callback"))
}

func TestVerifySecret_CorrectAndIncorrect(t *testing.T) {
	r := NewClientRegistry()
	require.NoError(t, r.Register("client-1", "s3cr3t", nil, nil, "client_secret_basic"))
	client, _ := r.Get("client-1")

	assert.True(t, client.VerifySecret("s3cr3t"))
	assert.False(t, client.VerifySecret("wrong"))
}

func TestVerifySecret_PublicClientAlwaysFails(t *testing.T) {
	r := NewClientRegistry()
	require.NoError(t, r.Register("client-1", "", nil, nil, "none"))
	client, _ := r.Get("client-1")

	assert.False(t, client.VerifySecret(""))
	assert.False(t, client.VerifySecret("anything"))
}
