// Package session persists the authenticated user's encrypted profile and
// drives the auth state machine.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/limiter"
	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

// Logical secure-store keys (each value is an opaque encrypted string).
const (
	profileKey       = "vault.user_profile"
	apiCredentialKey = "vault.api_credential"
)

// State is the auth state of the device session.
type State int

// State machine: Loading -> (Authenticated | Unauthenticated),
// Authenticated -> Unauthenticated on logout.
const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// RegisterInput is the shape accepted by Register.
type RegisterInput struct {
	FirstName        string
	LastName         string
	Email            string
	Password         string
	Provider         string
	BiometricEnabled bool
}

// Store owns the single authenticated user per device session.
type Store struct {
	store    securestore.Store
	codec    vaultcrypto.Codec
	verifier CredentialVerifier
	lim      limiter.Limiter
	signKey  []byte
	tokenTTL time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	state State
	user  *model.User
}

// New constructs a session store. The initial state is Loading until
// Restore has run. lim may be nil to disable login throttling.
func New(store securestore.Store, codec vaultcrypto.Codec, verifier CredentialVerifier, lim limiter.Limiter, signKey []byte, tokenTTL time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Store{
		store:    store,
		codec:    codec,
		verifier: verifier,
		lim:      lim,
		signKey:  signKey,
		tokenTTL: tokenTTL,
		log:      log,
		state:    StateLoading,
	}
}

// State returns the current auth state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the in-memory profile, or nil when unauthenticated.
func (s *Store) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Restore reads the persisted encrypted profile. A missing profile or a
// corrupt/foreign blob resolves to nil (logged) rather than an error:
// the app treats it as "no session". Secure-store outages do propagate.
func (s *Store) Restore(ctx context.Context) (*model.User, error) {
	blob, err := s.store.Get(ctx, profileKey)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.setState(StateUnauthenticated, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("restore profile: %w", err)
	}
	plain, err := s.codec.Decrypt(blob)
	if err != nil {
		s.log.Warn("stored profile failed to decrypt, treating as no session", zap.Error(err))
		s.setState(StateUnauthenticated, nil)
		return nil, nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(plain), &u); err != nil {
		s.log.Warn("stored profile failed to parse, treating as no session", zap.Error(err))
		s.setState(StateUnauthenticated, nil)
		return nil, nil
	}
	s.setState(StateAuthenticated, &u)
	return s.User(), nil
}

// Register creates a new profile, enrolls the credential, persists the
// encrypted profile and transitions to Authenticated.
func (s *Store) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: empty email/password", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	if err := s.verifier.Enroll(ctx, email, in.Password); err != nil {
		return nil, fmt.Errorf("enroll credential: %w", err)
	}
	u := model.User{
		ID:               id,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Email:            email,
		Provider:         in.Provider,
		BiometricEnabled: in.BiometricEnabled,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.persist(ctx, u); err != nil {
		return nil, err
	}
	s.setState(StateAuthenticated, &u)
	return s.User(), nil
}

// Login verifies the credential (throttled), then returns the stored
// profile for that email or synthesizes one derived from it. The derived
// path is the documented stub: identity is a deterministic function of
// the email until a real verification service replaces DerivedVerifier.
func (s *Store) Login(ctx context.Context, email, password, provider string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if s.lim != nil {
		allowed, _, err := s.lim.Allow(ctx, email)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, errs.ErrRateLimited
		}
	}
	if err := s.verifier.Verify(ctx, email, password); err != nil {
		if s.lim != nil {
			if blocked, _, ferr := s.lim.Failure(ctx, email); ferr == nil && blocked {
				return nil, errs.ErrRateLimited
			}
		}
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if s.lim != nil {
		_ = s.lim.Success(ctx, email)
	}

	if u := s.storedProfile(ctx, email); u != nil {
		s.setState(StateAuthenticated, u)
		return s.User(), nil
	}

	u := model.User{
		ID:        uuid.NewV5(uuid.NamespaceOID, email),
		FirstName: emailLocalPart(email),
		Email:     email,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.persist(ctx, u); err != nil {
		return nil, err
	}
	s.setState(StateAuthenticated, &u)
	return s.User(), nil
}

// UpdateUser re-encrypts and persists the full profile, replacing the
// prior stored value, and refreshes the in-memory copy.
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if err := s.persist(ctx, u); err != nil {
		return err
	}
	s.setState(StateAuthenticated, &u)
	return nil
}

// Logout deletes the persisted profile and transitions to Unauthenticated.
// Safe to call repeatedly; deleting an absent profile is a no-op.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx, profileKey); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	s.setState(StateUnauthenticated, nil)
	return nil
}

// Token mints a short-lived HS256 token for the current user, consumed
// by the enrichment collaborator as bearer auth.
func (s *Store) Token() (string, error) {
	u := s.User()
	if u == nil {
		return "", errs.ErrUnauthorized
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.signKey)
}

// SetAPICredential persists the collaborator API credential encrypted
// under its own logical key.
func (s *Store) SetAPICredential(ctx context.Context, credential string) error {
	blob, err := s.codec.Encrypt(credential)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, apiCredentialKey, blob)
}

// APICredential returns the decrypted collaborator API credential.
func (s *Store) APICredential(ctx context.Context) (string, error) {
	blob, err := s.store.Get(ctx, apiCredentialKey)
	if err != nil {
		return "", err
	}
	return s.codec.Decrypt(blob)
}

func (s *Store) persist(ctx context.Context, u model.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	blob, err := s.codec.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypt profile: %w", err)
	}
	if err := s.store.Set(ctx, profileKey, blob); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// storedProfile returns the persisted profile when it matches the email.
func (s *Store) storedProfile(ctx context.Context, email string) *model.User {
	blob, err := s.store.Get(ctx, profileKey)
	if err != nil {
		return nil
	}
	plain, err := s.codec.Decrypt(blob)
	if err != nil {
		return nil
	}
	var u model.User
	if json.Unmarshal([]byte(plain), &u) != nil || !strings.EqualFold(u.Email, email) {
		return nil
	}
	return &u
}

func (s *Store) setState(st State, u *model.User) {
	s.mu.Lock()
	s.state = st
	s.user = u
	s.mu.Unlock()
}

func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
