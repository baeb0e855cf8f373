package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "clinician-17",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSession_SetClear(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	_, ok := s.SessionCredential(ctx)
	assert.False(t, ok)

	assert.True(t, s.Set("tok-1"))
	assert.False(t, s.Set("tok-1"))
	v, ok := s.SessionCredential(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)

	s.Clear()
	v, ok = s.SessionCredential(ctx)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestSession_ClearSilencesFallbackUntilSet(t *testing.T) {
	env := ProviderFunc(func(context.Context) (string, bool) { return "env-tok", true })
	s := NewSession(env)
	ctx := context.Background()

	v, ok := s.SessionCredential(ctx)
	require.True(t, ok)
	assert.Equal(t, "env-tok", v, "fallback answers before login")

	s.Set("typed-tok")
	v, _ = s.SessionCredential(ctx)
	assert.Equal(t, "typed-tok", v, "explicit login wins")

	s.Clear()
	_, ok = s.SessionCredential(ctx)
	assert.False(t, ok, "logout holds even though the fallback still has a token")

	s.Set("next-tok")
	v, ok = s.SessionCredential(ctx)
	require.True(t, ok)
	assert.Equal(t, "next-tok", v)
}

func TestEnvProvider(t *testing.T) {
	p := NewEnvProvider("DRAFTKEEPER_TEST_TOKEN")
	ctx := context.Background()

	t.Setenv("DRAFTKEEPER_TEST_TOKEN", "  ")
	_, ok := p.SessionCredential(ctx)
	assert.False(t, ok, "blank value is no credential")

	t.Setenv("DRAFTKEEPER_TEST_TOKEN", "abc")
	v, ok := p.SessionCredential(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestJWTGuard(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		wantOK bool
	}{
		{name: "valid jwt", token: signed(t, now.Add(time.Hour)), wantOK: true},
		{name: "expired jwt", token: signed(t, now.Add(-time.Second)), wantOK: false},
		{name: "opaque token", token: "opaque-session-cookie-value", wantOK: true},
		{name: "dotted opaque token", token: "a.b.c", wantOK: true},
		{name: "none", token: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewJWTGuard(ProviderFunc(func(context.Context) (string, bool) {
				return tt.token, tt.token != ""
			}))
			g.now = func() time.Time { return now }

			v, ok := g.SessionCredential(ctx)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.token, v)
			} else {
				assert.Empty(t, v)
			}
		})
	}
}
