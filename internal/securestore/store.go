// Package securestore defines the opaque key-value persistence capability
// backing the vault, and in-process implementations of it.
package securestore

import "context"

// Store is the secure key-value persistence contract. Values are opaque
// strings (typically encrypted blobs). Implementations must not lose data
// across process restarts unless explicitly ephemeral.
type Store interface {
	// Get returns the value under key, or errs.ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)
	// Set writes the value under key, replacing any prior value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the value under key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
