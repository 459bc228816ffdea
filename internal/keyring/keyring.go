// Package keyring owns the symmetric vault key lifecycle: generate once,
// persist in the secure store, hand out on demand.
package keyring

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

// storageKey is the logical secure-store key holding hex-encoded key material.
const storageKey = "vault.encryption_key"

// Manager retrieves or lazily creates the installation key. Creation is
// funneled through a single in-flight call so concurrent first users
// converge on the same key value; independent generate-and-overwrite
// would silently orphan previously encrypted data.
type Manager struct {
	store securestore.Store
	log   *zap.Logger

	sf singleflight.Group

	mu     sync.RWMutex
	cached []byte
}

// New constructs a Manager over the given secure store.
func New(store securestore.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, log: log}
}

// Key returns the installation key, creating and persisting it on first use.
// Fails with errs.ErrStorageUnavailable when the secure store is down;
// callers must not fall back to an unencrypted path.
func (m *Manager) Key(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	if m.cached != nil {
		k := append([]byte(nil), m.cached...)
		m.mu.RUnlock()
		return k, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do(storageKey, func() (any, error) {
		return m.loadOrCreate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (m *Manager) loadOrCreate(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	if m.cached != nil {
		defer m.mu.RUnlock()
		return m.cached, nil
	}
	m.mu.RUnlock()

	stored, err := m.store.Get(ctx, storageKey)
	switch {
	case err == nil:
		key, decErr := hex.DecodeString(stored)
		if decErr != nil || len(key) != vaultcrypto.KeyLen {
			return nil, fmt.Errorf("%w: key material malformed", errs.ErrStorageUnavailable)
		}
		m.remember(key)
		return key, nil
	case errors.Is(err, errs.ErrNotFound):
		key, genErr := vaultcrypto.Rand(vaultcrypto.KeyLen)
		if genErr != nil {
			return nil, genErr
		}
		if setErr := m.store.Set(ctx, storageKey, hex.EncodeToString(key)); setErr != nil {
			return nil, fmt.Errorf("persist key: %w", setErr)
		}
		m.log.Info("generated installation key")
		m.remember(key)
		return key, nil
	default:
		return nil, fmt.Errorf("load key: %w", err)
	}
}

func (m *Manager) remember(key []byte) {
	m.mu.Lock()
	m.cached = append([]byte(nil), key...)
	m.mu.Unlock()
}
