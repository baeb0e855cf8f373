// Package services contains application services for the draft client.
// This file defines the offline backup controller: the only component that
// combines the crypto engine with the backup store and decides when a local
// backup is trustworthy.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/dmitrijs2005/draftkeeper/internal/cryptox"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
	"github.com/dmitrijs2005/draftkeeper/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultRemoteSaveTimeout bounds a single remote save.
const DefaultRemoteSaveTimeout = 30 * time.Second

// BackupStore is the envelope persistence the controller needs.
type BackupStore interface {
	Write(ctx context.Context, id string, env *models.Envelope) error
	Read(ctx context.Context, id string) (*models.Envelope, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]string, error)
}

// PurgeReport summarises a PurgeAll sweep.
type PurgeReport struct {
	Deleted int
	Failed  int
}

// BackupController implements backup, restore-on-load, sync-on-reconnect
// and the logout purge.
//
// Contract:
//   - Backup never touches the network.
//   - Restore and SyncToServer treat an undecryptable envelope as absent and
//     delete it; the failure is never returned to the caller.
//   - SyncToServer is single-flight per identity.
//   - PurgeAll attempts every deletion and reports all failures.
type BackupController struct {
	store         BackupStore
	keys          *cryptox.KeyCache
	log           logging.Logger
	metrics       metrics.Reporter
	now           func() time.Time
	remoteTimeout time.Duration

	syncs singleflight.Group
	locks sync.Map // id -> *sync.Mutex
}

// ControllerOption configures a BackupController.
type ControllerOption func(*BackupController)

func WithControllerLogger(l logging.Logger) ControllerOption {
	return func(c *BackupController) { c.log = l }
}

func WithMetrics(m metrics.Reporter) ControllerOption {
	return func(c *BackupController) { c.metrics = m }
}

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *BackupController) { c.now = now }
}

func WithRemoteSaveTimeout(d time.Duration) ControllerOption {
	return func(c *BackupController) { c.remoteTimeout = d }
}

// NewBackupController wires a controller over store, sharing keys with the
// rest of the session.
func NewBackupController(store BackupStore, keys *cryptox.KeyCache, opts ...ControllerOption) *BackupController {
	c := &BackupController{
		store:         store,
		keys:          keys,
		log:           logging.Nop(),
		metrics:       metrics.NoopReporter{},
		now:           time.Now,
		remoteTimeout: DefaultRemoteSaveTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *BackupController) lock(id string) func() {
	m, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (c *BackupController) count(name string, tags map[string]string) {
	_ = c.metrics.Count(name, 1, tags)
}

// Backup encrypts payload under the session key and stores it as the single
// local backup of id, stamped with the current time.
//
// Returns common.ErrNoCredential without writing when credential is empty,
// an error wrapping common.ErrCryptoFailure on encryption failure, and one
// wrapping common.ErrStorageUnavailable when the store rejects the write.
func (c *BackupController) Backup(ctx context.Context, id string, payload *models.DraftPayload, credential string) error {
	if payload == nil {
		return errors.New("backup: nil payload")
	}

	key, err := c.keys.Get(ctx, credential)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backup: encode payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	ciphertext, nonce, err := cryptox.Encrypt(key, plaintext)
	if err != nil {
		c.log.Error(ctx, "backup encryption failed", "draft", id, "error", err)
		return err
	}
	env := models.NewEnvelope(ciphertext, nonce, c.now(), cryptox.KeyID(key))

	unlock := c.lock(id)
	err = c.store.Write(ctx, id, env)
	unlock()
	if err != nil {
		c.count("backup.write_failed", nil)
		c.log.Warn(ctx, "backup write failed", "draft", id, "error", err)
		return err
	}

	c.count("backup.written", nil)
	c.log.Debug(ctx, "backup written", "draft", id, "created_at_ms", env.CreatedAtMs)
	return nil
}

// open reads and decrypts the backup of id. It returns a nil envelope when
// no usable backup exists; undecryptable envelopes are deleted on the way.
func (c *BackupController) open(ctx context.Context, id, credential string) (*models.Envelope, *models.DraftPayload, error) {
	env, err := c.store.Read(ctx, id)
	if err != nil || env == nil {
		return nil, nil, err
	}

	key, err := c.keys.Get(ctx, credential)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(key)

	var payload models.DraftPayload
	ciphertext, nonce, err := env.Decode()
	if err == nil {
		var plaintext []byte
		plaintext, err = cryptox.Decrypt(key, ciphertext, nonce)
		if err == nil {
			err = json.Unmarshal(plaintext, &payload)
			common.WipeByteArray(plaintext)
		}
	}
	if err != nil {
		c.discardUnreadable(ctx, id, env, key)
		return nil, nil, nil
	}
	return env, &payload, nil
}

// discardUnreadable deletes an envelope that failed to open. Wrong key and
// tampering look the same to AES-GCM; the key fingerprint only splits them
// for metrics.
func (c *BackupController) discardUnreadable(ctx context.Context, id string, env *models.Envelope, key []byte) {
	cause := "tampered"
	if env.KeyID != "" && env.KeyID != cryptox.KeyID(key) {
		cause = "key_mismatch"
	}
	c.count("backup.decrypt_failed", map[string]string{"cause": cause})
	c.log.Warn(ctx, "discarding undecryptable backup", "draft", id, "cause", cause)

	if err := c.deleteIfUnchanged(ctx, id, env); err != nil {
		c.log.Warn(ctx, "failed to delete undecryptable backup", "draft", id, "error", err)
	}
}

// deleteIfUnchanged removes the backup of id unless a newer write replaced
// env in the meantime.
func (c *BackupController) deleteIfUnchanged(ctx context.Context, id string, env *models.Envelope) error {
	unlock := c.lock(id)
	defer unlock()

	cur, err := c.store.Read(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil || cur.IV != env.IV {
		return nil
	}
	return c.store.Delete(ctx, id)
}

// Restore decides whether the local backup of id should be offered to the
// user on load.
//
// The backup is Restorable only if it was created strictly after
// serverLastSavedAtMs (UTC epoch ms). Equal or older backups are deleted,
// so a local copy can never silently regress a newer server document.
// Without a credential nothing is read or deleted. When local storage is
// unavailable the draft loads without a backup and no error is returned.
func (c *BackupController) Restore(ctx context.Context, id string, serverLastSavedAtMs int64, credential string) (models.RestoreDecision, error) {
	if credential == "" {
		return models.NoBackup, nil
	}

	env, payload, err := c.open(ctx, id, credential)
	if errors.Is(err, common.ErrStorageUnavailable) {
		c.count("backup.read_failed", nil)
		c.log.Warn(ctx, "local storage unavailable, loading without backup", "draft", id, "error", err)
		return models.NoBackup, nil
	}
	if err != nil {
		return models.NoBackup, err
	}
	if env == nil {
		return models.NoBackup, nil
	}

	if env.CreatedAtMs > serverLastSavedAtMs {
		c.count("backup.restored", nil)
		c.log.Info(ctx, "local backup is newer than server copy", "draft", id,
			"local_ms", env.CreatedAtMs, "server_ms", serverLastSavedAtMs)
		return models.RestoreDecision{Restorable: true, Payload: payload, CreatedAt: env.CreatedAt()}, nil
	}

	c.count("backup.discarded", map[string]string{"reason": "stale"})
	c.log.Info(ctx, "discarding stale backup", "draft", id,
		"local_ms", env.CreatedAtMs, "server_ms", serverLastSavedAtMs)
	if err := c.deleteIfUnchanged(ctx, id, env); err != nil {
		c.log.Warn(ctx, "failed to delete stale backup", "draft", id, "error", err)
	}
	return models.NoBackup, nil
}

// Discard deletes the backup of id, typically after the user declined to
// restore it.
func (c *BackupController) Discard(ctx context.Context, id string) error {
	unlock := c.lock(id)
	defer unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.count("backup.discarded", map[string]string{"reason": "declined"})
	c.log.Info(ctx, "backup discarded by user", "draft", id)
	return nil
}

// SyncToServer pushes the local backup of id through save. On success the
// envelope is deleted and the result carries the version issued by the
// server; on failure it is kept for a later retry and the error wraps
// common.ErrRemoteSave. With no backup (or no credential) it is a no-op
// returning a zero result and nil.
//
// Concurrent calls for the same id share one execution and its result.
func (c *BackupController) SyncToServer(ctx context.Context, id, credential string, save models.RemoteSaveFunc) (models.SyncResult, error) {
	if credential == "" {
		return models.SyncResult{}, nil
	}

	v, err, shared := c.syncs.Do(id, func() (any, error) {
		return c.syncOnce(ctx, id, credential, save)
	})
	if shared {
		c.log.Debug(ctx, "joined in-flight sync", "draft", id)
	}
	res, _ := v.(models.SyncResult)
	return res, err
}

func (c *BackupController) syncOnce(ctx context.Context, id, credential string, save models.RemoteSaveFunc) (models.SyncResult, error) {
	env, payload, err := c.open(ctx, id, credential)
	if err != nil {
		return models.SyncResult{}, err
	}
	if env == nil {
		return models.SyncResult{}, nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	version, err := save(rctx, id, payload)
	cancel()
	if err != nil {
		c.count("backup.sync_failed", nil)
		c.log.Warn(ctx, "remote save failed, keeping local backup", "draft", id, "error", err)
		return models.SyncResult{}, fmt.Errorf("%w: %w", common.ErrRemoteSave, err)
	}

	if err := c.deleteIfUnchanged(ctx, id, env); err != nil {
		c.log.Warn(ctx, "failed to delete synced backup", "draft", id, "error", err)
	}
	c.count("backup.synced", nil)
	c.log.Info(ctx, "local backup synced", "draft", id, "version", version)
	return models.SyncResult{Synced: true, Version: version}, nil
}

// PurgeAll deletes every backup in the namespace. It keeps going after a
// failed deletion, logs and counts each failure, and returns them joined.
//
// The logout flow must call it, and wait for it, before the credential is
// invalidated. The sweep ignores cancellation of ctx.
func (c *BackupController) PurgeAll(ctx context.Context) (PurgeReport, error) {
	ctx = context.WithoutCancel(ctx)
	var report PurgeReport

	ids, err := c.store.ListAll(ctx)
	if err != nil {
		c.log.Error(ctx, "purge: cannot list backups", "error", err)
		return report, err
	}

	var errs []error
	for _, id := range ids {
		unlock := c.lock(id)
		err := c.store.Delete(ctx, id)
		unlock()
		if err != nil {
			report.Failed++
			c.log.Error(ctx, "purge: failed to delete backup", "draft", id, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		report.Deleted++
	}

	_ = c.metrics.Count("backup.purged", int64(report.Deleted), nil)
	if report.Failed > 0 {
		_ = c.metrics.Count("backup.purge_failed", int64(report.Failed), nil)
	}
	c.log.Info(ctx, "purge finished", "deleted", report.Deleted, "failed", report.Failed)
	return report, errors.Join(errs...)
}
