// Package kv provides the persistent, TTL-bearing key/value store every Room
// is checkpointed into. Store has two implementations: MemoryStore for
// single-process development and tests, and PostgresStore for a real
// deployment, mirroring the way the game server this package was adapted
// from keeps an in-memory session fallback next to its Postgres-backed one.
package kv

import (
	"context"
	"time"
)

// Store is a TTL-bearing key/value map. Values are opaque JSON: callers
// marshal/unmarshal their own types; the store only moves bytes.
type Store interface {
	// Get reads key. ok is false if the key is absent or has expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set writes key with the given time-to-live. A zero ttl means "no
	// expiry".
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every non-expired key with the given prefix. Used
	// sparingly (room enumeration, admin tooling), never on the hot path.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
