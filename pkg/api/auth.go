package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"portmap-ai/pkg/auth"
)

// Authenticator checks request credentials against a static token, a bcrypt hash of
// the token, or a JWT signed with the shared secret. With none of the three
// configured every request is accepted.
type Authenticator struct {
	Token     string
	TokenHash string
	JWTSecret []byte
}

func NewAuthenticator(token, tokenHash, jwtSecret string) *Authenticator {
	a := &Authenticator{Token: token, TokenHash: tokenHash}
	if jwtSecret != "" {
		a.JWTSecret = []byte(jwtSecret)
	}
	return a
}

// Enabled reports whether requests need credentials.
func (a *Authenticator) Enabled() bool {
	return a != nil && (a.Token != "" || a.TokenHash != "" || len(a.JWTSecret) > 0)
}

// Check validates the credential carried by r.
func (a *Authenticator) Check(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}
	return a.Valid(requestToken(r))
}

// Valid validates a bare token string.
func (a *Authenticator) Valid(tok string) bool {
	if !a.Enabled() {
		return true
	}
	if tok == "" {
		return false
	}
	if a.Token != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(a.Token)) == 1 {
		return true
	}
	if a.TokenHash != "" && bcrypt.CompareHashAndPassword([]byte(a.TokenHash), []byte(tok)) == nil {
		return true
	}
	if len(a.JWTSecret) > 0 {
		if _, err := auth.Parse(a.JWTSecret, tok); err == nil {
			return true
		}
	}
	return false
}

// requestToken reads X-Auth-Token, then a Bearer Authorization header, then the
// token query parameter (browsers cannot set headers on websocket upgrades).
func requestToken(r *http.Request) string {
	if h := r.Header.Get("X-Auth-Token"); h != "" {
		return h
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// HashToken returns the bcrypt hash stored as auth_token_hash.
func HashToken(tok string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(tok), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
