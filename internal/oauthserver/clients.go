package oauthserver

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Client is a registered OAuth client: client_id/redirect_uris/grant
// types plus a bcrypt hash of its secret for confidential clients.
// Public clients (e.g. native apps using PKCE) carry an empty
// SecretHash.
type Client struct {
	ClientID              string
	SecretHash             string
	RedirectURIs          []string
	GrantTypes            []string
	TokenEndpointAuthMethod string
}

// ClientRegistry is an in-memory, process-local client registry
// (matching the Non-goals around persistence).
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry builds an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Register hashes secret (if non-empty) with bcrypt and stores the
// client. An empty secret registers a public client.
func (r *ClientRegistry) Register(clientID, secret string, redirectURIs, grantTypes []string, authMethod string) error {
	var hash string
	if secret != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash = string(h)
	}

	r.mu.Lock()
	r.clients[clientID] = &Client{
		ClientID:                clientID,
		SecretHash:              hash,
		RedirectURIs:            redirectURIs,
		GrantTypes:              grantTypes,
		TokenEndpointAuthMethod: authMethod,
	}
	r.mu.Unlock()
	return nil
}

// Get looks up a registered client by id.
func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	return c, ok
}

// ValidateRedirectURI reports whether redirectURI is one of the
// client's registered URIs.
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, u := range c.RedirectURIs {
		if u == redirectURI {
			return true
		}
	}
	return false
}

// VerifySecret compares secret against the client's bcrypt hash. Public
// clients (no stored hash) always fail verification: a secret check
// should never be attempted against them.
func (c *Client) VerifySecret(secret string) bool {
	if c.SecretHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// IsPublic reports whether the client has no registered secret.
func (c *Client) IsPublic() bool {
	return c.SecretHash == ""
}
