// Package credentials supplies the ephemeral session credential that backup
// keys are derived from.
//
// A Provider reports "no credential" with ok == false; an empty string is
// never handed out as a credential. Nothing in this package persists the
// credential.
package credentials

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider returns the current session credential.
type Provider interface {
	SessionCredential(ctx context.Context) (string, bool)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, bool)

func (f ProviderFunc) SessionCredential(ctx context.Context) (string, bool) {
	return f(ctx)
}

// Session is the in-memory credential holder owned by the login flow.
//
// Fallback providers (an environment variable, say) are consulted while no
// token is set. Clear ends the session: fallbacks stay silent until the next
// Set, so a logout cannot be undone by a credential that is still present in
// the environment.
type Session struct {
	mu        sync.RWMutex
	token     string
	loggedOut bool
	fallbacks []Provider
}

func NewSession(fallbacks ...Provider) *Session {
	return &Session{fallbacks: fallbacks}
}

// Set stores token as the live credential. Returns true if it differs from
// the previous one.
func (s *Session) Set(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.token != token
	s.token = token
	s.loggedOut = false
	return changed
}

// Clear drops the credential and silences the fallbacks.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.loggedOut = true
}

func (s *Session) SessionCredential(ctx context.Context) (string, bool) {
	s.mu.RLock()
	token, loggedOut := s.token, s.loggedOut
	s.mu.RUnlock()

	if token != "" {
		return token, true
	}
	if loggedOut {
		return "", false
	}
	for _, p := range s.fallbacks {
		if tok, ok := p.SessionCredential(ctx); ok {
			return tok, true
		}
	}
	return "", false
}

// EnvProvider reads the credential from an environment variable.
type EnvProvider struct {
	name   string
	lookup func(string) (string, bool)
}

func NewEnvProvider(name string) *EnvProvider {
	return &EnvProvider{name: name, lookup: os.LookupEnv}
}

func (p *EnvProvider) SessionCredential(context.Context) (string, bool) {
	v, ok := p.lookup(p.name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// JWTGuard hides credentials that are JWTs past their exp claim. Tokens that
// are not JWTs pass through unchanged. The signature is not verified; that
// is the server's job, and an expired token is all this guard cares about.
type JWTGuard struct {
	next   Provider
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTGuard(next Provider) *JWTGuard {
	return &JWTGuard{next: next, now: time.Now, parser: jwt.NewParser()}
}

func (g *JWTGuard) SessionCredential(ctx context.Context) (string, bool) {
	token, ok := g.next.SessionCredential(ctx)
	if !ok || token == "" {
		return "", false
	}
	if strings.Count(token, ".") != 2 {
		return token, true
	}

	var claims jwt.RegisteredClaims
	if _, _, err := g.parser.ParseUnverified(token, &claims); err != nil {
		// opaque token that happens to contain two dots
		return token, true
	}
	if claims.ExpiresAt != nil && !g.now().Before(claims.ExpiresAt.Time) {
		return "", false
	}
	return token, true
}
