// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/medvault/medvault/internal/model"
)

// RecordRepository provides per-account access to medical records.
// Collections are partitioned strictly by account id; no operation may
// leak data across accounts.
type RecordRepository interface {
	// ListAll returns all records for the account sorted by date descending.
	// An unknown account yields an empty slice, never synthesized data.
	ListAll(ctx context.Context, accountID uuid.UUID) ([]model.MedicalRecord, error)

	// ListRecent returns at most limit records sorted by date descending.
	ListRecent(ctx context.Context, accountID uuid.UUID, limit int) ([]model.MedicalRecord, error)

	// Get returns a single record by id.
	Get(ctx context.Context, accountID, recordID uuid.UUID) (*model.MedicalRecord, error)

	// Save inserts the record, or replaces it when the id already exists.
	Save(ctx context.Context, accountID uuid.UUID, rec model.MedicalRecord) error

	// Delete removes a record by id; a missing id is a no-op.
	Delete(ctx context.Context, accountID, recordID uuid.UUID) error

	// Purge removes the account's entire record collection.
	Purge(ctx context.Context, accountID uuid.UUID) error
}

// ProviderRepository provides per-account access to healthcare providers.
type ProviderRepository interface {
	// List returns the account's providers.
	List(ctx context.Context, accountID uuid.UUID) ([]model.Provider, error)

	// Upsert merges by id: an existing id merges non-empty fields into the
	// stored entry, a nil/unknown id creates a new one with a generated id.
	Upsert(ctx context.Context, accountID uuid.UUID, in model.ProviderInput) (*model.Provider, error)

	// Delete removes a provider by id; a missing id is a no-op.
	Delete(ctx context.Context, accountID, providerID uuid.UUID) error
}

// LinkedAccountRepository manages family-member sub-profiles.
type LinkedAccountRepository interface {
	// List returns the primary account's linked accounts.
	List(ctx context.Context, primaryID uuid.UUID) ([]model.LinkedAccount, error)

	// Add creates a linked account under the primary.
	Add(ctx context.Context, primaryID uuid.UUID, in model.LinkedAccountInput) (*model.LinkedAccount, error)

	// Remove deletes a linked account and cascades deletion of the
	// record collection keyed under its id.
	Remove(ctx context.Context, primaryID, linkedID uuid.UUID) error
}

// SettingsRepository stores per-account preferences.
type SettingsRepository interface {
	// Get returns the account's settings, defaulted on first read.
	Get(ctx context.Context, accountID uuid.UUID) (model.Settings, error)

	// Update merges the patch into the stored settings and returns the result.
	// Unspecified fields are never removed.
	Update(ctx context.Context, accountID uuid.UUID, patch model.SettingsPatch) (model.Settings, error)
}
