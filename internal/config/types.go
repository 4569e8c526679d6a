package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Session SessionConfig `yaml:"session"`
	SSE     SSEConfig     `yaml:"sse"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	M2M     []M2MClient   `yaml:"m2m,omitempty"`
	Scope   ScopeConfig   `yaml:"scope,omitempty"`
	Debug   bool          `yaml:"debug,omitempty"`
}

// HTTPConfig controls the /mcp transport.
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	ProtocolVersion string   `yaml:"protocolVersion,omitempty"` // overridable for tests only
	AllowedOrigins  []string `yaml:"allowedOrigins,omitempty"`  // "*" disables origin checking
	Stateless       bool     `yaml:"stateless,omitempty"`
	MetricsEnabled  bool     `yaml:"metricsEnabled,omitempty"`
}

// SessionConfig controls stateful-mode session tracking.
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idleTTL,omitempty"`
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty"`
}

// SSEConfig controls the outbound event stream.
type SSEConfig struct {
	BufferSize        int           `yaml:"bufferSize,omitempty"`
	KeepAliveInterval time.Duration `yaml:"keepAliveInterval,omitempty"`
}

// OAuthConfig configures the built-in authorization server.
type OAuthConfig struct {
	Enabled        bool          `yaml:"enabled,omitempty"`
	Issuer         string        `yaml:"issuer,omitempty"`
	CodeTTL        time.Duration `yaml:"codeTTL,omitempty"`
	RefreshTTL     time.Duration `yaml:"refreshTTL,omitempty"`
	AccessTokenTTL time.Duration `yaml:"accessTokenTTL,omitempty"`
	SigningKey     string        `yaml:"signingKey,omitempty"`
	SigningKeyFile string        `yaml:"signingKeyFile,omitempty"`
	Clients        []OAuthClient `yaml:"clients,omitempty"`
}

// OAuthClient is a statically registered OAuth client.
type OAuthClient struct {
	ClientID                string   `yaml:"clientID"`
	Secret                  string   `yaml:"secret,omitempty"`
	SecretFile              string   `yaml:"secretFile,omitempty"`
	RedirectURIs            []string `yaml:"redirectURIs,omitempty"`
	GrantTypes              []string `yaml:"grantTypes,omitempty"`
	TokenEndpointAuthMethod string   `yaml:"tokenEndpointAuthMethod,omitempty"`
}

// M2MClient registers a client-credentials consumer this server trusts,
// used by internal/m2m when this server itself acts as an OAuth client.
type M2MClient struct {
	Name          string   `yaml:"name"`
	TokenEndpoint string   `yaml:"tokenEndpoint"`
	ClientID      string   `yaml:"clientID"`
	ClientSecret  string   `yaml:"clientSecret,omitempty"`
	SecretFile    string   `yaml:"secretFile,omitempty"`
	Scopes        []string `yaml:"scopes,omitempty"`
	Audience      string   `yaml:"audience,omitempty"`
}

// ScopeConfig overrides the default method-to-required-scope policy
// table. Watcher re-reads it when the config file changes.
type ScopeConfig struct {
	Overrides map[string][]string `yaml:"overrides,omitempty"`
}

// GetDefaultConfig returns the configuration used when no config file is
// present, mirroring the teacher's single defaults-literal convention.
func GetDefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Session: SessionConfig{
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		SSE: SSEConfig{
			BufferSize:        256,
			KeepAliveInterval: 15 * time.Second,
		},
		OAuth: OAuthConfig{
			CodeTTL:        2 * time.Minute,
			RefreshTTL:     30 * 24 * time.Hour,
			AccessTokenTTL: time.Hour,
		},
	}
}
