package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/keyring"
	"github.com/medvault/medvault/internal/limiter"
	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

func newStore(t *testing.T, st securestore.Store, verifier CredentialVerifier, lim limiter.Limiter) *Store {
	t.Helper()
	key, err := keyring.New(st, nil).Key(context.Background())
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	codec, err := vaultcrypto.NewAEADCodec(key)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return New(st, codec, verifier, lim, []byte("sign-key"), time.Minute, nil)
}

func TestStore_InitialStateIsLoading(t *testing.T) {
	t.Parallel()
	s := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)
	if s.State() != StateLoading {
		t.Fatalf("initial state = %v", s.State())
	}
}

func TestStore_RestoreEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)

	u, err := s.Restore(ctx)
	if err != nil || u != nil {
		t.Fatalf("Restore empty: %v %v", u, err)
	}
	if s.State() != StateUnauthenticated {
		t.Fatalf("state after empty restore = %v", s.State())
	}
}

func TestStore_RegisterRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	s := newStore(t, st, NewArgonVerifier(st), nil)

	u, err := s.Register(ctx, RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "correct horse",
		Provider:  "email",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state after register = %v", s.State())
	}

	// a fresh session over the same store restores the same profile
	s2 := newStore(t, st, NewArgonVerifier(st), nil)
	got, err := s2.Restore(ctx)
	if err != nil || got == nil {
		t.Fatalf("Restore: %v %v", got, err)
	}
	if got.ID != u.ID || got.FirstName != "Ada" {
		t.Fatalf("restored profile mismatch: %+v", got)
	}
}

func TestStore_RestoreCorruptBlobFailsSilently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	_ = st.Set(ctx, "vault.user_profile", "not-a-valid-blob")
	s := newStore(t, st, DerivedVerifier{}, nil)

	u, err := s.Restore(ctx)
	if err != nil || u != nil {
		t.Fatalf("corrupt restore must yield nil, nil: %v %v", u, err)
	}
	if s.State() != StateUnauthenticated {
		t.Fatalf("state after corrupt restore = %v", s.State())
	}
}

func TestStore_LoginDerivedIdentityIsDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s1 := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)
	u1, err := s1.Login(ctx, "pat@example.com", "anything", "email")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	s2 := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)
	u2, err := s2.Login(ctx, "pat@example.com", "other", "email")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("derived id must be a deterministic function of the email")
	}
	if u1.FirstName != "pat" {
		t.Fatalf("derived first name = %q", u1.FirstName)
	}
}

func TestStore_LoginWrongPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	s := newStore(t, st, NewArgonVerifier(st), nil)

	if _, err := s.Register(ctx, RegisterInput{Email: "a@b.c", Password: "right"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Login(ctx, "a@b.c", "wrong", "email"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := s.Login(ctx, "a@b.c", "right", "email"); err != nil {
		t.Fatalf("correct password: %v", err)
	}
}

func TestStore_LoginRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	lim := limiter.NewMemory(15*time.Minute, 2, 10*time.Minute)
	s := newStore(t, st, NewArgonVerifier(st), lim)

	if _, err := s.Register(ctx, RegisterInput{Email: "a@b.c", Password: "right"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := s.Login(ctx, "a@b.c", "wrong", "email"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("first failure: %v", err)
	}
	if _, err := s.Login(ctx, "a@b.c", "wrong", "email"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("threshold failure must rate limit, got %v", err)
	}
	// even the right password is refused while blocked
	if _, err := s.Login(ctx, "a@b.c", "right", "email"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("blocked login must rate limit, got %v", err)
	}
}

func TestStore_UpdateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	s := newStore(t, st, DerivedVerifier{}, nil)

	u, err := s.Login(ctx, "pat@example.com", "x", "email")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	u.LastName = "Smith"
	u.BiometricEnabled = true
	if err := s.UpdateUser(ctx, *u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got := s.User(); got.LastName != "Smith" || !got.BiometricEnabled {
		t.Fatalf("in-memory copy not refreshed: %+v", got)
	}

	s2 := newStore(t, st, DerivedVerifier{}, nil)
	got, err := s2.Restore(ctx)
	if err != nil || got == nil || got.LastName != "Smith" {
		t.Fatalf("persisted update not restored: %+v %v", got, err)
	}

	if err := s.UpdateUser(ctx, model.User{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on empty id, got %v", err)
	}
}

func TestStore_LogoutIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)

	if _, err := s.Login(ctx, "pat@example.com", "x", "email"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.State() != StateUnauthenticated || s.User() != nil {
		t.Fatalf("state after logout: %v %v", s.State(), s.User())
	}
	// second logout is a no-op
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	// nothing restores afterwards
	u, err := s.Restore(ctx)
	if err != nil || u != nil {
		t.Fatalf("restore after logout: %v %v", u, err)
	}
}

func TestStore_Token(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, securestore.NewMemory(), DerivedVerifier{}, nil)

	if _, err := s.Token(); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("token without session: %v", err)
	}

	u, err := s.Login(ctx, "pat@example.com", "x", "email")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	parsed, err := jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte("sign-key"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse token: %v", err)
	}
	if sub, _ := parsed.Claims.GetSubject(); sub != u.ID.String() {
		t.Fatalf("subject = %q, want %q", sub, u.ID)
	}
}

func TestStore_APICredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := securestore.NewMemory()
	s := newStore(t, st, DerivedVerifier{}, nil)

	if err := s.SetAPICredential(ctx, "sk-secret"); err != nil {
		t.Fatalf("SetAPICredential: %v", err)
	}
	// stored value is encrypted, not the credential itself
	raw, err := st.Get(ctx, "vault.api_credential")
	if err != nil || raw == "sk-secret" {
		t.Fatalf("credential stored in plaintext: %q %v", raw, err)
	}
	got, err := s.APICredential(ctx)
	if err != nil || got != "sk-secret" {
		t.Fatalf("APICredential: %q %v", got, err)
	}
}
