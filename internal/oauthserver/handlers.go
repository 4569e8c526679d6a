package oauthserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/giantswarm/mcpref/internal/logging"
	"github.com/giantswarm/mcpref/pkg/oauth"
)

// DefaultAccessTokenTTL is the lifetime of an issued access token.
const DefaultAccessTokenTTL = time.Hour

// Server wires the code/refresh store, client registry, and JWT issuer
// into the /authorize and /token HTTP handlers.
type Server struct {
	Issuer   string
	Store    *Store
	Clients  *ClientRegistry
	Tokens   *Issuer
	Subjects SubjectAuthenticator
}

// SubjectAuthenticator authenticates the resource owner for an
// /authorize request. A reference server typically backs this with a
// fixed test subject or a simple session cookie; it is pluggable so
// callers can wire in whatever identity source fits their deployment.
type SubjectAuthenticator interface {
	Authenticate(r *http.Request) (subject string, ok bool)
}

func writeOAuthError(w http.ResponseWriter, status int, errorCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// HandleAuthorize implements POST /authorize: validates client_id,
// redirect_uri, response_type, and PKCE parameters, then issues a code
// and redirects to redirect_uri with code and state.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	clientID := r.Form.Get("client_id")
	redirectURI := r.Form.Get("redirect_uri")
	responseType := r.Form.Get("response_type")
	codeChallenge := r.Form.Get("code_challenge")
	codeChallengeMethod := r.Form.Get("code_challenge_method")
	scope := r.Form.Get("scope")
	state := r.Form.Get("state")
	resource := r.Form.Get("resource")

	client, ok := s.Clients.Get(clientID)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	if !client.ValidateRedirectURI(redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri not registered for client")
		return
	}
	if responseType != "code" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "response_type must be code")
		return
	}
	if codeChallengeMethod != "S256" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_challenge_method must be S256")
		return
	}
	if codeChallenge == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_challenge is required")
		return
	}

	subject, ok := s.Subjects.Authenticate(r)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, "access_denied", "subject authentication failed")
		return
	}

	code, err := s.Store.StoreCode(CodeEntry{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Scope:               scope,
		Subject:             subject,
		Resource:            resource,
	}, 0)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue authorization code")
		return
	}

	redirect, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not a valid URL")
		return
	}
	q := redirect.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	redirect.RawQuery = q.Encode()

	logging.Audit(logging.AuditEvent{Action: "oauth_authorize", Outcome: "success", Subject: subject, Target: clientID})
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// HandleToken implements POST /token for the authorization_code and
// refresh_token grants. Any other grant_type, client_credentials
// included, is rejected with unsupported_grant_type.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	switch r.Form.Get("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.Form.Get("code")
	codeVerifier := r.Form.Get("code_verifier")
	redirectURI := r.Form.Get("redirect_uri")

	entry, ok := s.Store.ConsumeCode(code)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, or already used")
		return
	}
	if entry.RedirectURI != redirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the original request")
		return
	}
	if !oauth.Verify(codeVerifier, entry.CodeChallenge, entry.CodeChallengeMethod) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match code_challenge")
		return
	}

	s.issueTokenPair(w, entry.Subject, entry.ClientID, entry.Scope, entry.Resource)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.Form.Get("refresh_token")

	claims, err := s.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or expired")
		return
	}

	entry, ok := s.Store.GetRefresh(refreshToken)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token has been revoked or expired")
		return
	}

	scope := entry.Scope
	if requested := r.Form.Get("scope"); requested != "" {
		scope = requested
	}
	resource := entry.Resource
	if requested := r.Form.Get("resource"); requested != "" {
		resource = requested
	}

	// Rotate: revoke the consumed refresh token and issue a fresh one.
	s.Store.RevokeRefresh(refreshToken)
	s.issueTokenPair(w, claims.Subject, entry.ClientID, scope, resource)
}

func (s *Server) issueTokenPair(w http.ResponseWriter, subject, clientID, scope, resource string) {
	accessToken, err := s.Tokens.IssueAccessToken(subject, resource, scope, DefaultAccessTokenTTL)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue access token")
		return
	}

	refreshToken, err := s.Tokens.IssueRefreshToken(subject, DefaultRefreshTTL)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue refresh token")
		return
	}
	// Key the stored entry by the JWT handed to the client, so the
	// refresh grant can look it up and revoke it on rotation.
	now := time.Now()
	s.Store.refreshMu.Lock()
	s.Store.refresh[refreshToken] = &RefreshEntry{
		ClientID:  clientID,
		Subject:   subject,
		Scope:     scope,
		Resource:  resource,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultRefreshTTL),
	}
	s.Store.refreshMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(DefaultAccessTokenTTL.Seconds()),
		"scope":         scope,
	})
}

// ValidateClientCredentials verifies a confidential client's secret in
// constant time via bcrypt's own comparison, used by /token handlers
// that authenticate the client itself (not implemented above since the
// reference server's registered clients are all public-PKCE by default,
// but exposed for deployments that register confidential clients).
func ValidateClientCredentials(client *Client, secret string) bool {
	if client.IsPublic() {
		return subtle.ConstantTimeCompare([]byte(secret), []byte("")) == 1 && secret == ""
	}
	return client.VerifySecret(secret)
}
