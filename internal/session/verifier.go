package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

// Argon2id parameters.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16
)

// CredentialVerifier checks a login credential. Implementations sit behind
// the same login/register contract so the stub can be swapped for a real
// verification service without touching callers.
type CredentialVerifier interface {
	// Enroll records the credential for an account at registration.
	Enroll(ctx context.Context, email, password string) error
	// Verify checks the credential; errs.ErrUnauthorized on mismatch.
	Verify(ctx context.Context, email, password string) error
}

// DerivedVerifier reproduces the original app's behavior: identity is
// derived from the email and no credential is actually checked. Kept as
// an explicit stub until a real verification service is wired in.
type DerivedVerifier struct{}

// Enroll is a no-op.
func (DerivedVerifier) Enroll(context.Context, string, string) error { return nil }

// Verify accepts any non-empty credential pair.
func (DerivedVerifier) Verify(_ context.Context, email, password string) error {
	if email == "" || password == "" {
		return errs.ErrUnauthorized
	}
	return nil
}

// ArgonVerifier stores per-account Argon2id hashes in the secure store
// and verifies with a constant-time compare.
type ArgonVerifier struct {
	store securestore.Store
}

// NewArgonVerifier constructs the verifier over the given store.
func NewArgonVerifier(store securestore.Store) *ArgonVerifier {
	return &ArgonVerifier{store: store}
}

func credentialKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "vault.credential." + hex.EncodeToString(sum[:])
}

func hashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Enroll hashes the password with a fresh salt and persists salt||hash.
func (v *ArgonVerifier) Enroll(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: empty email/password", errs.ErrValidation)
	}
	salt, err := vaultcrypto.Rand(saltLen)
	if err != nil {
		return err
	}
	hash := hashPassword([]byte(password), salt)
	return v.store.Set(ctx, credentialKey(email), hex.EncodeToString(salt)+":"+hex.EncodeToString(hash))
}

// Verify recomputes the hash for the stored salt and compares in constant time.
func (v *ArgonVerifier) Verify(ctx context.Context, email, password string) error {
	stored, err := v.store.Get(ctx, credentialKey(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrUnauthorized
		}
		return err
	}
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return errs.ErrUnauthorized
	}
	salt, err1 := hex.DecodeString(saltHex)
	expected, err2 := hex.DecodeString(hashHex)
	if err1 != nil || err2 != nil {
		return errs.ErrUnauthorized
	}
	got := hashPassword([]byte(password), salt)
	if subtle.ConstantTimeCompare(got, expected) != 1 {
		return errs.ErrUnauthorized
	}
	return nil
}
