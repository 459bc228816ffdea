package encrypted

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/repository"
)

// Interface adapters. One Vault backs all four repository interfaces;
// these views map the interface method sets onto it.

type recordsView struct{ v *Vault }

var _ repository.RecordRepository = recordsView{}

func (r recordsView) ListAll(ctx context.Context, accountID uuid.UUID) ([]model.MedicalRecord, error) {
	return r.v.ListAllRecords(ctx, accountID)
}
func (r recordsView) ListRecent(ctx context.Context, accountID uuid.UUID, limit int) ([]model.MedicalRecord, error) {
	return r.v.ListRecentRecords(ctx, accountID, limit)
}
func (r recordsView) Get(ctx context.Context, accountID, recordID uuid.UUID) (*model.MedicalRecord, error) {
	return r.v.GetRecord(ctx, accountID, recordID)
}
func (r recordsView) Save(ctx context.Context, accountID uuid.UUID, rec model.MedicalRecord) error {
	return r.v.SaveRecord(ctx, accountID, rec)
}
func (r recordsView) Delete(ctx context.Context, accountID, recordID uuid.UUID) error {
	return r.v.DeleteRecord(ctx, accountID, recordID)
}
func (r recordsView) Purge(ctx context.Context, accountID uuid.UUID) error {
	return r.v.PurgeRecords(ctx, accountID)
}

// Records returns the record-repository view of the vault.
func (v *Vault) Records() repository.RecordRepository { return recordsView{v} }

type providersView struct{ v *Vault }

var _ repository.ProviderRepository = providersView{}

func (p providersView) List(ctx context.Context, accountID uuid.UUID) ([]model.Provider, error) {
	return p.v.ListProviders(ctx, accountID)
}
func (p providersView) Upsert(ctx context.Context, accountID uuid.UUID, in model.ProviderInput) (*model.Provider, error) {
	return p.v.UpsertProvider(ctx, accountID, in)
}
func (p providersView) Delete(ctx context.Context, accountID, providerID uuid.UUID) error {
	return p.v.DeleteProvider(ctx, accountID, providerID)
}

// Providers returns the provider-repository view of the vault.
func (v *Vault) Providers() repository.ProviderRepository { return providersView{v} }

type linkedView struct{ v *Vault }

var _ repository.LinkedAccountRepository = linkedView{}

func (l linkedView) List(ctx context.Context, primaryID uuid.UUID) ([]model.LinkedAccount, error) {
	return l.v.ListLinked(ctx, primaryID)
}
func (l linkedView) Add(ctx context.Context, primaryID uuid.UUID, in model.LinkedAccountInput) (*model.LinkedAccount, error) {
	return l.v.AddLinked(ctx, primaryID, in)
}
func (l linkedView) Remove(ctx context.Context, primaryID, linkedID uuid.UUID) error {
	return l.v.RemoveLinked(ctx, primaryID, linkedID)
}

// Linked returns the linked-account-repository view of the vault.
func (v *Vault) Linked() repository.LinkedAccountRepository { return linkedView{v} }

type settingsView struct{ v *Vault }

var _ repository.SettingsRepository = settingsView{}

func (s settingsView) Get(ctx context.Context, accountID uuid.UUID) (model.Settings, error) {
	return s.v.GetSettings(ctx, accountID)
}
func (s settingsView) Update(ctx context.Context, accountID uuid.UUID, patch model.SettingsPatch) (model.Settings, error) {
	return s.v.UpdateSettings(ctx, accountID, patch)
}

// Settings returns the settings-repository view of the vault.
func (v *Vault) Settings() repository.SettingsRepository { return settingsView{v} }
