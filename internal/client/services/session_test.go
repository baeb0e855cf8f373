package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callLog records the order in which logout collaborators are invoked.
type callLog struct {
	calls []string

	purgeErr error
	pingErr  error
	token    string
}

func (c *callLog) Set(token string) bool {
	c.calls = append(c.calls, "set")
	changed := c.token != token
	c.token = token
	return changed
}

func (c *callLog) Clear() {
	c.calls = append(c.calls, "clear")
	c.token = ""
}

func (c *callLog) Invalidate() { c.calls = append(c.calls, "invalidate") }

func (c *callLog) StopAll() { c.calls = append(c.calls, "stop") }

func (c *callLog) PurgeAll(context.Context) (PurgeReport, error) {
	c.calls = append(c.calls, "purge")
	if c.purgeErr != nil {
		return PurgeReport{Deleted: 1, Failed: 1}, c.purgeErr
	}
	return PurgeReport{Deleted: 2}, nil
}

func (c *callLog) Ping(context.Context) error { return c.pingErr }

func newSession(c *callLog) SessionService {
	return NewSessionService(c, c, c, c, c, nil)
}

func TestSession_LogoutOrder(t *testing.T) {
	c := &callLog{token: "tok"}

	rep, err := newSession(c).Logout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Deleted)
	assert.Equal(t, []string{"stop", "purge", "invalidate", "clear"}, c.calls)
	assert.Empty(t, c.token)
}

func TestSession_LogoutClearsCredentialEvenIfPurgeFails(t *testing.T) {
	boom := errors.New("disk")
	c := &callLog{token: "tok", purgeErr: boom}

	rep, err := newSession(c).Logout(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{"stop", "purge", "invalidate", "clear"}, c.calls)
	assert.Empty(t, c.token)
}

func TestSession_Login(t *testing.T) {
	c := &callLog{}
	s := newSession(c)
	ctx := context.Background()

	require.ErrorIs(t, s.Login(ctx, "   "), common.ErrInvalidToken)
	assert.Empty(t, c.calls)

	require.NoError(t, s.Login(ctx, "tok-1"))
	assert.Equal(t, []string{"set", "invalidate"}, c.calls)

	// same token again keeps the cached key
	c.calls = nil
	require.NoError(t, s.Login(ctx, "tok-1"))
	assert.Equal(t, []string{"set"}, c.calls)
}

func TestSession_Ping(t *testing.T) {
	c := &callLog{pingErr: errors.New("down")}
	require.Error(t, newSession(c).Ping(context.Background()))

	s := NewSessionService(c, c, c, c, nil, nil)
	require.NoError(t, s.Ping(context.Background()))
}
