package kv

import (
	"context"
)

// Repository describes the raw key/value operations.
type Repository interface {
	// Get returns the value stored under key, or (nil, nil) if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
