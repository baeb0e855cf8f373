package cryptox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"golang.org/x/sync/singleflight"
)

// KeyCache holds the derived key of the current session.
//
// It is single-slot: a credential with a different prefix replaces the cached
// key. Concurrent Get calls for the same credential share one in-flight
// derivation. Callers receive their own copy of the key and should wipe it
// when done.
type KeyCache struct {
	derive func(credential string) ([]byte, error)
	group  singleflight.Group

	mu  sync.Mutex
	fp  string
	key []byte
	gen uint64
}

// NewKeyCache returns an empty cache backed by DeriveKey.
func NewKeyCache() *KeyCache {
	return &KeyCache{derive: DeriveKey}
}

func fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credentialPrefix(credential)))
	return hex.EncodeToString(sum[:])
}

// Get returns the key for credential, deriving it if the cache holds a key
// for another credential or none at all.
//
// Derivation runs on its own goroutine; if ctx is done first Get returns
// ctx.Err() and the derivation still completes and populates the cache.
func (c *KeyCache) Get(ctx context.Context, credential string) ([]byte, error) {
	if credential == "" {
		return nil, common.ErrNoCredential
	}
	fp := fingerprint(credential)

	c.mu.Lock()
	if c.key != nil && c.fp == fp {
		k := clone(c.key)
		c.mu.Unlock()
		return k, nil
	}
	gen := c.gen
	c.mu.Unlock()

	ch := c.group.DoChan(fp, func() (any, error) {
		key, err := c.derive(credential)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		// an Invalidate while deriving means the session is gone
		if c.gen == gen {
			if c.fp != fp {
				common.WipeByteArray(c.key)
			}
			c.fp, c.key = fp, clone(key)
		}
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	}
}

// Invalidate wipes and forgets the cached key. Call it on logout or when the
// credential is known to have rotated.
func (c *KeyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	common.WipeByteArray(c.key)
	c.key = nil
	c.fp = ""
	c.gen++
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
