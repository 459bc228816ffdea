package keyring

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errs.ErrStorageUnavailable
}
func (brokenStore) Set(context.Context, string, string) error {
	return errs.ErrStorageUnavailable
}
func (brokenStore) Delete(context.Context, string) error {
	return errs.ErrStorageUnavailable
}

func TestManager_KeyStability(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := New(securestore.NewMemory(), nil)

	k1, err := m.Key(ctx)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if len(k1) != vaultcrypto.KeyLen {
		t.Fatalf("key len=%d", len(k1))
	}
	k2, err := m.Key(ctx)
	if err != nil {
		t.Fatalf("Key (second): %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("sequential calls returned different keys")
	}
}

func TestManager_ValueEncryptedBeforeSecondCallDecrypts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := securestore.NewMemory()
	m := New(store, nil)

	k1, _ := m.Key(ctx)
	c1, _ := vaultcrypto.NewAEADCodec(k1)
	blob, err := c1.Encrypt("before second call")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	k2, _ := m.Key(ctx)
	c2, _ := vaultcrypto.NewAEADCodec(k2)
	got, err := c2.Decrypt(blob)
	if err != nil || got != "before second call" {
		t.Fatalf("decrypt after second Key call: %q %v", got, err)
	}
}

func TestManager_SharedAcrossInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := securestore.NewMemory()

	k1, err := New(store, nil).Key(ctx)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	k2, err := New(store, nil).Key(ctx)
	if err != nil {
		t.Fatalf("Key (fresh manager): %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("fresh manager over same store must load the same key")
	}
}

func TestManager_ConcurrentFirstUse_SingleKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := New(securestore.NewMemory(), nil)

	const n = 32
	keys := make([][]byte, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			k, err := m.Key(ctx)
			if err != nil {
				t.Errorf("Key: %v", err)
				return
			}
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if !bytes.Equal(keys[0], keys[i]) {
			t.Fatalf("caller %d observed a different key", i)
		}
	}
}

func TestManager_StorageUnavailable(t *testing.T) {
	t.Parallel()
	m := New(brokenStore{}, nil)
	if _, err := m.Key(context.Background()); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("want ErrStorageUnavailable, got %v", err)
	}
}

func TestManager_CorruptKeyMaterial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := securestore.NewMemory()
	_ = store.Set(ctx, "vault.encryption_key", "not-hex")

	if _, err := New(store, nil).Key(ctx); !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("want ErrStorageUnavailable on corrupt key, got %v", err)
	}
}
