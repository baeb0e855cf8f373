// Package backups stores one encrypted envelope per draft identity in
// device-local storage.
//
// Records live under the common.BackupKeyPrefix namespace. Reads are
// self-healing: a record that cannot be decoded, fails structural validation,
// or is older than the TTL is deleted and reported as absent. There is no
// background reaper; expiry is checked when a record is read.
package backups

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
	"github.com/dmitrijs2005/draftkeeper/internal/metrics"
)

// DefaultTTL is the maximum age of a backup at read time.
const DefaultTTL = 24 * time.Hour

// Store is the envelope store.
type Store struct {
	repo kv.Repository
	ttl  time.Duration
	now  func() time.Time
	log  logging.Logger
	mr   metrics.Reporter
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides the wall clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics reports discarded records as backup.discarded.
func WithMetrics(m metrics.Reporter) Option {
	return func(s *Store) { s.mr = m }
}

// NewStore builds a Store over repo.
func NewStore(repo kv.Repository, opts ...Option) *Store {
	s := &Store{repo: repo, ttl: DefaultTTL, now: time.Now, log: logging.Nop(), mr: metrics.NoopReporter{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func recordKey(id string) string {
	return common.BackupKeyPrefix + id
}

// Write serialises env and stores it as the single backup of id, replacing
// any previous one.
func (s *Store) Write(ctx context.Context, id string, env *models.Envelope) error {
	blob, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.repo.Set(ctx, recordKey(id), blob); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

// Read returns the envelope of id, or (nil, nil) when there is none usable.
// Storage errors are returned wrapped in common.ErrStorageUnavailable.
func (s *Store) Read(ctx context.Context, id string) (*models.Envelope, error) {
	key := recordKey(id)

	blob, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	if blob == nil {
		return nil, nil
	}

	var env models.Envelope
	reason := ""
	if err := json.Unmarshal(blob, &env); err != nil {
		reason = "undecodable"
	} else if err := env.Validate(); err != nil {
		reason = "invalid"
	} else if s.now().Sub(env.CreatedAt()) > s.ttl {
		reason = "expired"
	}

	if reason != "" {
		s.log.Info(ctx, "discarding backup record", "draft", id, "reason", reason)
		_ = s.mr.Count("backup.discarded", 1, map[string]string{"reason": reason})
		if err := s.repo.Delete(ctx, key); err != nil {
			s.log.Warn(ctx, "failed to delete backup record", "draft", id, "error", err)
		}
		return nil, nil
	}
	return &env, nil
}

// Delete removes the backup of id. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, recordKey(id)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

// ListAll returns the identities of every stored backup. It exists for the
// logout purge only.
func (s *Store) ListAll(ctx context.Context) ([]string, error) {
	keys, err := s.repo.Keys(ctx, common.BackupKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, common.BackupKeyPrefix))
	}
	return ids, nil
}
