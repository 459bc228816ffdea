// Package encrypted implements the repository interfaces with authoritative
// in-memory state persisted as encrypted blobs in the secure store.
package encrypted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/securestore"
	"github.com/medvault/medvault/internal/vaultcrypto"
)

// Logical key prefixes; the suffix is the owning account id.
const (
	recordsKeyPrefix   = "vault.records."
	providersKeyPrefix = "vault.providers."
	linkedKeyPrefix    = "vault.linked."
	settingsKeyPrefix  = "vault.settings."
)

// account holds one partition's collections. Its mutex serializes all
// mutations for that account id; distinct accounts proceed independently.
type account struct {
	mu sync.Mutex

	records   []model.MedicalRecord
	providers []model.Provider
	linked    []model.LinkedAccount
	settings  *model.Settings

	recordsLoaded   bool
	providersLoaded bool
	linkedLoaded    bool
}

// Vault is the encrypted store behind all repository interfaces. It is an
// injected instance constructed once at app start, never a package-level
// singleton.
type Vault struct {
	store securestore.Store
	codec vaultcrypto.Codec
	log   *zap.Logger

	mu       sync.Mutex
	accounts map[uuid.UUID]*account
}

// New constructs a Vault over the given secure store and codec.
func New(store securestore.Store, codec vaultcrypto.Codec, log *zap.Logger) *Vault {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vault{
		store:    store,
		codec:    codec,
		log:      log,
		accounts: make(map[uuid.UUID]*account),
	}
}

func (v *Vault) account(id uuid.UUID) *account {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.accounts[id]
	if !ok {
		a = &account{}
		v.accounts[id] = a
	}
	return a
}

// loadBlob reads and decrypts one collection blob into dst.
// Absence is reported as found=false; a corrupt blob is an ErrDecryption,
// never silently treated as empty data.
func (v *Vault) loadBlob(ctx context.Context, key string, dst any) (found bool, err error) {
	blob, err := v.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	plain, err := v.codec.Decrypt(blob)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(plain), dst); err != nil {
		return false, fmt.Errorf("load %s: %w: %v", key, errs.ErrDecryption, err)
	}
	return true, nil
}

func (v *Vault) saveBlob(ctx context.Context, key string, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	blob, err := v.codec.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	if err := v.store.Set(ctx, key, blob); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// --- records ---

func (v *Vault) loadRecords(ctx context.Context, id uuid.UUID, a *account) error {
	if a.recordsLoaded {
		return nil
	}
	var recs []model.MedicalRecord
	if _, err := v.loadBlob(ctx, recordsKeyPrefix+id.String(), &recs); err != nil {
		return err
	}
	a.records = recs
	a.recordsLoaded = true
	return nil
}

func (v *Vault) persistRecords(ctx context.Context, id uuid.UUID, a *account) error {
	return v.saveBlob(ctx, recordsKeyPrefix+id.String(), a.records)
}

// ListAllRecords returns all records for the account sorted by date descending.
// An unknown account yields an empty result, never synthesized data.
func (v *Vault) ListAllRecords(ctx context.Context, accountID uuid.UUID) ([]model.MedicalRecord, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadRecords(ctx, accountID, a); err != nil {
		return nil, err
	}
	out := make([]model.MedicalRecord, len(a.records))
	for i := range a.records {
		out[i] = cloneRecord(a.records[i])
	}
	sortRecords(out)
	return out, nil
}

// ListRecentRecords returns at most limit records sorted by date descending.
func (v *Vault) ListRecentRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]model.MedicalRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := v.ListAllRecords(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetRecord returns a single record by id.
func (v *Vault) GetRecord(ctx context.Context, accountID, recordID uuid.UUID) (*model.MedicalRecord, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadRecords(ctx, accountID, a); err != nil {
		return nil, err
	}
	for i := range a.records {
		if a.records[i].ID == recordID {
			rec := cloneRecord(a.records[i])
			return &rec, nil
		}
	}
	return nil, errs.ErrNotFound
}

// SaveRecord inserts or replaces the record by id and persists the collection.
func (v *Vault) SaveRecord(ctx context.Context, accountID uuid.UUID, rec model.MedicalRecord) error {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadRecords(ctx, accountID, a); err != nil {
		return err
	}
	replaced := false
	for i := range a.records {
		if a.records[i].ID == rec.ID {
			a.records[i] = cloneRecord(rec)
			replaced = true
			break
		}
	}
	if !replaced {
		a.records = append(a.records, cloneRecord(rec))
	}
	return v.persistRecords(ctx, accountID, a)
}

// DeleteRecord removes a record by id; a missing id is a no-op.
func (v *Vault) DeleteRecord(ctx context.Context, accountID, recordID uuid.UUID) error {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadRecords(ctx, accountID, a); err != nil {
		return err
	}
	for i := range a.records {
		if a.records[i].ID == recordID {
			a.records = append(a.records[:i], a.records[i+1:]...)
			return v.persistRecords(ctx, accountID, a)
		}
	}
	return nil
}

// PurgeRecords removes the account's entire record collection.
func (v *Vault) PurgeRecords(ctx context.Context, accountID uuid.UUID) error {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
	a.recordsLoaded = true
	if err := v.store.Delete(ctx, recordsKeyPrefix+accountID.String()); err != nil {
		return fmt.Errorf("purge records: %w", err)
	}
	return nil
}

// --- providers ---

func (v *Vault) loadProviders(ctx context.Context, id uuid.UUID, a *account) error {
	if a.providersLoaded {
		return nil
	}
	var ps []model.Provider
	if _, err := v.loadBlob(ctx, providersKeyPrefix+id.String(), &ps); err != nil {
		return err
	}
	a.providers = ps
	a.providersLoaded = true
	return nil
}

// ListProviders returns the account's providers sorted by name.
func (v *Vault) ListProviders(ctx context.Context, accountID uuid.UUID) ([]model.Provider, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadProviders(ctx, accountID, a); err != nil {
		return nil, err
	}
	out := append([]model.Provider(nil), a.providers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertProvider merges by id: non-empty input fields overwrite the stored
// entry, unspecified fields are preserved. A nil or unknown id creates a
// new entry with a generated id.
func (v *Vault) UpsertProvider(ctx context.Context, accountID uuid.UUID, in model.ProviderInput) (*model.Provider, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadProviders(ctx, accountID, a); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if in.ID != uuid.Nil {
		for i := range a.providers {
			if a.providers[i].ID == in.ID {
				mergeProvider(&a.providers[i], in)
				a.providers[i].UpdatedAt = now
				p := a.providers[i]
				if err := v.saveBlob(ctx, providersKeyPrefix+accountID.String(), a.providers); err != nil {
					return nil, err
				}
				return &p, nil
			}
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := model.Provider{
		ID:        id,
		Name:      in.Name,
		Specialty: in.Specialty,
		Facility:  in.Facility,
		Phone:     in.Phone,
		Address:   in.Address,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.providers = append(a.providers, p)
	if err := v.saveBlob(ctx, providersKeyPrefix+accountID.String(), a.providers); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProvider removes a provider by id; a missing id is a no-op.
func (v *Vault) DeleteProvider(ctx context.Context, accountID, providerID uuid.UUID) error {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadProviders(ctx, accountID, a); err != nil {
		return err
	}
	for i := range a.providers {
		if a.providers[i].ID == providerID {
			a.providers = append(a.providers[:i], a.providers[i+1:]...)
			return v.saveBlob(ctx, providersKeyPrefix+accountID.String(), a.providers)
		}
	}
	return nil
}

func mergeProvider(dst *model.Provider, in model.ProviderInput) {
	if in.Name != "" {
		dst.Name = in.Name
	}
	if in.Specialty != "" {
		dst.Specialty = in.Specialty
	}
	if in.Facility != "" {
		dst.Facility = in.Facility
	}
	if in.Phone != "" {
		dst.Phone = in.Phone
	}
	if in.Address != "" {
		dst.Address = in.Address
	}
	if in.Notes != "" {
		dst.Notes = in.Notes
	}
}

// --- linked accounts ---

func (v *Vault) loadLinked(ctx context.Context, id uuid.UUID, a *account) error {
	if a.linkedLoaded {
		return nil
	}
	var ls []model.LinkedAccount
	if _, err := v.loadBlob(ctx, linkedKeyPrefix+id.String(), &ls); err != nil {
		return err
	}
	a.linked = ls
	a.linkedLoaded = true
	return nil
}

// ListLinked returns the primary account's linked accounts.
func (v *Vault) ListLinked(ctx context.Context, primaryID uuid.UUID) ([]model.LinkedAccount, error) {
	a := v.account(primaryID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadLinked(ctx, primaryID, a); err != nil {
		return nil, err
	}
	return append([]model.LinkedAccount(nil), a.linked...), nil
}

// AddLinked creates a linked account under the primary.
func (v *Vault) AddLinked(ctx context.Context, primaryID uuid.UUID, in model.LinkedAccountInput) (*model.LinkedAccount, error) {
	a := v.account(primaryID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadLinked(ctx, primaryID, a); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	la := model.LinkedAccount{
		ID:           id,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Relationship: in.Relationship,
		DateOfBirth:  in.DateOfBirth,
		CreatedBy:    primaryID,
		CreatedAt:    time.Now().UTC(),
	}
	a.linked = append(a.linked, la)
	if err := v.saveBlob(ctx, linkedKeyPrefix+primaryID.String(), a.linked); err != nil {
		return nil, err
	}
	return &la, nil
}

// RemoveLinked deletes a linked account and cascades deletion of the record
// collection keyed under its id. A missing id is a no-op.
func (v *Vault) RemoveLinked(ctx context.Context, primaryID, linkedID uuid.UUID) error {
	a := v.account(primaryID)
	a.mu.Lock()
	if err := v.loadLinked(ctx, primaryID, a); err != nil {
		a.mu.Unlock()
		return err
	}
	found := false
	for i := range a.linked {
		if a.linked[i].ID == linkedID {
			a.linked = append(a.linked[:i], a.linked[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		a.mu.Unlock()
		return nil
	}
	err := v.saveBlob(ctx, linkedKeyPrefix+primaryID.String(), a.linked)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	// cascade runs under the linked account's own lock; the ids differ,
	// so there is no lock-order cycle
	v.log.Info("cascading record deletion for removed linked account",
		zap.String("primary", primaryID.String()),
		zap.String("linked", linkedID.String()),
	)
	return v.PurgeRecords(ctx, linkedID)
}

// --- settings ---

func (v *Vault) loadSettings(ctx context.Context, id uuid.UUID, a *account) error {
	if a.settings != nil {
		return nil
	}
	var s model.Settings
	found, err := v.loadBlob(ctx, settingsKeyPrefix+id.String(), &s)
	if err != nil {
		return err
	}
	if !found {
		s = model.DefaultSettings()
	}
	a.settings = &s
	return nil
}

// GetSettings returns the account's settings, defaulted on first read.
func (v *Vault) GetSettings(ctx context.Context, accountID uuid.UUID) (model.Settings, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadSettings(ctx, accountID, a); err != nil {
		return model.Settings{}, err
	}
	return *a.settings, nil
}

// UpdateSettings merges the patch and persists the result. Unspecified
// fields keep their stored values.
func (v *Vault) UpdateSettings(ctx context.Context, accountID uuid.UUID, patch model.SettingsPatch) (model.Settings, error) {
	a := v.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := v.loadSettings(ctx, accountID, a); err != nil {
		return model.Settings{}, err
	}
	merged := patch.Apply(*a.settings)
	if err := v.saveBlob(ctx, settingsKeyPrefix+accountID.String(), merged); err != nil {
		return model.Settings{}, err
	}
	a.settings = &merged
	return merged, nil
}

// --- helpers ---

func cloneRecord(r model.MedicalRecord) model.MedicalRecord {
	out := r
	if r.Metadata != nil {
		m := *r.Metadata
		m.Keywords = append([]string(nil), r.Metadata.Keywords...)
		m.Medications = append([]string(nil), r.Metadata.Medications...)
		out.Metadata = &m
	}
	out.HIPAA.AccessHistory = append([]model.AccessEvent(nil), r.HIPAA.AccessHistory...)
	return out
}

func sortRecords(recs []model.MedicalRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.After(recs[j].Date)
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
