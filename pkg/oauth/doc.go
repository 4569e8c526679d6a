// Package oauth provides the OAuth 2.1 primitives shared by the
// authorization server (internal/oauthserver) and the outbound client
// (internal/oauthclient): PKCE generation/verification, the wire types
// both sides marshal, WWW-Authenticate parsing, and a small metadata
// discovery + token endpoint HTTP client.
//
// # Core Components
//
//   - Token: normalized OAuth token response with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - AuthChallenge: parsed WWW-Authenticate header information
//   - PKCE generation and constant-time verification (RFC 7636)
//   - Client: metadata discovery, authorization-code exchange, refresh,
//     introspection
package oauth
