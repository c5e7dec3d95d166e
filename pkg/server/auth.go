package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Roles understood by the API.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// SchedulerTokenHeader carries the pre-shared maintenance credential.
const SchedulerTokenHeader = "X-Scheduler-Token"

// Identity is an authenticated caller.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Authenticator resolves the caller of a request. It returns nil, nil when
// the request carries no credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// TokenAuthenticator maps static bearer tokens to identities.
type TokenAuthenticator struct {
	tokens map[string]Identity
}

// NewTokenAuthenticator parses tokens of the form token -> "id:role". The
// role defaults to client when omitted.
func NewTokenAuthenticator(tokens map[string]string) (*TokenAuthenticator, error) {
	a := &TokenAuthenticator{tokens: make(map[string]Identity, len(tokens))}
	for token, spec := range tokens {
		if token == "" {
			return nil, nimerrors.NewConfigError("auth.tokens", "token must not be empty")
		}
		id, role, _ := strings.Cut(spec, ":")
		id = strings.TrimSpace(id)
		role = strings.ToLower(strings.TrimSpace(role))
		if id == "" {
			return nil, nimerrors.NewConfigError("auth.tokens", "identity must not be empty")
		}
		if role == "" {
			role = RoleClient
		}
		a.tokens[token] = Identity{ID: id, Role: role}
	}
	return a, nil
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, nimerrors.NewUnauthorized("Authenticate", "malformed authorization header")
	}
	token = strings.TrimSpace(token)

	for known, id := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			identity := id
			return &identity, nil
		}
	}
	return nil, nimerrors.NewUnauthorized("Authenticate", "invalid token")
}

// schedulerTokenValid reports whether presented matches expected. An
// unconfigured expected token never matches.
func schedulerTokenValid(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
