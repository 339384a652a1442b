// Package kv provides the key-value storage tiers the resilience layer
// persists into: durable stores that survive process restarts (Bolt,
// SQLite) and an ephemeral in-memory store scoped to the process
// lifetime (Mem).
package kv

import "context"

// Store is the storage contract shared by every tier. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get retrieves the value stored under key. The boolean reports
	// whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key that begins with prefix, sorted
	// lexicographically. An empty prefix matches all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}
