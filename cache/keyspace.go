package cache

import (
	"strconv"
	"sync/atomic"
)

// Namespace is the fixed prefix of every cache-owned key in the kv
// tiers. Purging enumerates this prefix, which covers keys from every
// version, current and orphaned.
const Namespace = "cache:"

// Keyspace is a global version counter shared by every cache tier. Each
// physical key embeds the current version, so bumping the version makes
// all previously written entries unreachable without touching the
// physical stores (lazy invalidation).
type Keyspace struct {
	version atomic.Uint64
}

// NewKeyspace creates a Keyspace starting at version 1.
func NewKeyspace() *Keyspace {
	ks := &Keyspace{}
	ks.version.Store(1)
	return ks
}

// Key returns the physical key for a logical key under the current version.
func (ks *Keyspace) Key(logical string) string {
	return ks.Prefix() + logical
}

// Prefix returns the current version prefix, e.g. "cache:v3:".
func (ks *Keyspace) Prefix() string {
	return Namespace + "v" + strconv.FormatUint(ks.version.Load(), 10) + ":"
}

// Bump advances the version, orphaning every key written under prior
// versions. It returns the new version.
func (ks *Keyspace) Bump() uint64 {
	return ks.version.Add(1)
}

// Version returns the current version.
func (ks *Keyspace) Version() uint64 {
	return ks.version.Load()
}
