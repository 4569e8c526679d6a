package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, Validate(GetDefaultConfig()))
}

func TestValidate_MissingAddrFails(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.HTTP.Addr = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.addr")
}

func TestValidate_NegativeBufferSizeFails(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.SSE.BufferSize = -1
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sse.bufferSize")
}

func TestValidate_OAuthEnabledRequiresIssuerAndSigningKey(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.OAuth.Enabled = true
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oauth.issuer")
	assert.Contains(t, err.Error(), "oauth.signingKey")
}

func TestValidate_OAuthDisabledSkipsIssuerCheck(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.OAuth.Enabled = false
	assert.NoError(t, Validate(cfg))
}

func TestValidate_RejectsUnknownAuthMethod(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.OAuth.Enabled = true
	cfg.OAuth.Issuer = "https://auth.example.com"
	cfg.OAuth.SigningKey = "key"
	cfg.OAuth.Clients = []OAuthClient{{ClientID: "c1", TokenEndpointAuthMethod: "bogus"}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokenEndpointAuthMethod")
}

func TestValidate_M2MClientRequiresNameAndEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.M2M = []M2MClient{{}}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m2m[].name")
	assert.Contains(t, err.Error(), "m2m[].tokenEndpoint")
}

func TestValidationErrors_ErrorMessageSummarizesAll(t *testing.T) {
	var errs ValidationErrors
	errs.Add("a", "bad")
	errs.Add("b", "worse")
	assert.Contains(t, errs.Error(), "field 'a': bad")
	assert.Contains(t, errs.Error(), "field 'b': worse")
}
