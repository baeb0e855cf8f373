// This file defines the session service: login hands the credential to the
// in-memory session, logout tears down every trace of it in a fixed order.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
)

// CredentialHolder is the writable side of the session credential.
type CredentialHolder interface {
	Set(token string) bool
	Clear()
}

// KeyInvalidator forgets cached key material.
type KeyInvalidator interface {
	Invalidate()
}

// Purger wipes every local backup.
type Purger interface {
	PurgeAll(ctx context.Context) (PurgeReport, error)
}

// SchedulerStopper halts all autosave activity.
type SchedulerStopper interface {
	StopAll()
}

// Pinger checks server liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionService defines session operations for the CLI.
//
// Contract:
//   - Login: install a new credential; a different credential than before
//     drops the cached backup key.
//   - Logout: stop autosave, purge backups, forget the key, clear the
//     credential. The credential is cleared even when the purge fails.
//   - Ping: check server liveness.
type SessionService interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) (PurgeReport, error)
	Ping(ctx context.Context) error
}

type sessionService struct {
	creds      CredentialHolder
	keys       KeyInvalidator
	backups    Purger
	schedulers SchedulerStopper
	pinger     Pinger
	log        logging.Logger
}

// NewSessionService wires a SessionService. pinger may be nil, in which case
// Ping always succeeds.
func NewSessionService(creds CredentialHolder, keys KeyInvalidator, backups Purger,
	schedulers SchedulerStopper, pinger Pinger, log logging.Logger) SessionService {
	if log == nil {
		log = logging.Nop()
	}
	return &sessionService{
		creds:      creds,
		keys:       keys,
		backups:    backups,
		schedulers: schedulers,
		pinger:     pinger,
		log:        log,
	}
}

// Login stores token as the session credential. A blank token is rejected
// with common.ErrInvalidToken.
func (s *sessionService) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return common.ErrInvalidToken
	}
	if s.creds.Set(token) {
		s.keys.Invalidate()
		s.log.Info(ctx, "session credential changed")
	}
	return nil
}

// Logout must finish the purge before the credential goes away, otherwise
// backups encrypted under it would outlive the session.
func (s *sessionService) Logout(ctx context.Context) (PurgeReport, error) {
	s.schedulers.StopAll()

	report, err := s.backups.PurgeAll(ctx)
	if err != nil {
		s.log.Error(ctx, "logout purge incomplete", "deleted", report.Deleted, "failed", report.Failed, "error", err)
		err = fmt.Errorf("purge backups: %w", err)
	}

	s.keys.Invalidate()
	s.creds.Clear()
	s.log.Info(ctx, "logged out")
	return report, err
}

func (s *sessionService) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger.Ping(ctx)
}
