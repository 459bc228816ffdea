// Package service implements vault operations on top of the encrypted
// repositories. It owns input validation, enrichment, and audit; screens
// and the CLI call only this layer.
package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/audit"
	"github.com/medvault/medvault/internal/enrich"
	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/fhirimport"
	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/repository"
)

// VaultService defines operations over the signed-in account's vault.
// Every method is scoped by an account id; linked-account ids are valid
// account ids for the record operations.
type VaultService interface {
	// Upload validates the input, enriches it best-effort and persists
	// the record with a created audit event.
	Upload(ctx context.Context, accountID uuid.UUID, in model.RecordInput) (*model.MedicalRecord, error)
	// ImportFHIR uploads every resource in a FHIR document.
	ImportFHIR(ctx context.Context, accountID uuid.UUID, doc []byte) ([]model.MedicalRecord, error)
	// ListRecords returns the account's records, newest first.
	ListRecords(ctx context.Context, accountID uuid.UUID) ([]model.MedicalRecord, error)
	// RecentRecords returns at most limit records, newest first.
	RecentRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]model.MedicalRecord, error)
	// GetRecord returns one record and appends a viewed audit event.
	GetRecord(ctx context.Context, accountID, recordID uuid.UUID) (*model.MedicalRecord, error)
	// DeleteRecord removes a record; a missing id is a no-op.
	DeleteRecord(ctx context.Context, accountID, recordID uuid.UUID) error

	// Providers lists the account's healthcare providers.
	Providers(ctx context.Context, accountID uuid.UUID) ([]model.Provider, error)
	// UpsertProvider creates or merges a provider entry.
	UpsertProvider(ctx context.Context, accountID uuid.UUID, in model.ProviderInput) (*model.Provider, error)
	// DeleteProvider removes a provider; a missing id is a no-op.
	DeleteProvider(ctx context.Context, accountID, providerID uuid.UUID) error

	// LinkedAccounts lists family-member sub-profiles.
	LinkedAccounts(ctx context.Context, primaryID uuid.UUID) ([]model.LinkedAccount, error)
	// AddLinkedAccount creates a family-member sub-profile.
	AddLinkedAccount(ctx context.Context, primaryID uuid.UUID, in model.LinkedAccountInput) (*model.LinkedAccount, error)
	// RemoveLinkedAccount deletes a sub-profile and its records.
	RemoveLinkedAccount(ctx context.Context, primaryID, linkedID uuid.UUID) error

	// Settings returns the account's preferences.
	Settings(ctx context.Context, accountID uuid.UUID) (model.Settings, error)
	// UpdateSettings merges a partial update into stored preferences.
	UpdateSettings(ctx context.Context, accountID uuid.UUID, patch model.SettingsPatch) (model.Settings, error)

	// MedicationInteractions reports known risky pairs across the vault.
	MedicationInteractions(ctx context.Context, accountID uuid.UUID) ([]enrich.Interaction, error)
	// Recommendations derives follow-up suggestions from the record mix.
	Recommendations(ctx context.Context, accountID uuid.UUID) ([]string, error)
	// Ask answers a free-form question from the account's records.
	Ask(ctx context.Context, accountID uuid.UUID, question string) (string, error)
}

type VaultServiceImpl struct {
	records   repository.RecordRepository
	providers repository.ProviderRepository
	linked    repository.LinkedAccountRepository
	settings  repository.SettingsRepository

	enricher      enrich.Enricher
	enrichTimeout time.Duration
	trail         *audit.Trail
	validate      *validator.Validate
	log           *zap.Logger
	now           func() time.Time
}

// NewVaultService constructs VaultService. enricher may be nil, in which
// case every upload is stored unenriched.
func NewVaultService(
	records repository.RecordRepository,
	providers repository.ProviderRepository,
	linked repository.LinkedAccountRepository,
	settings repository.SettingsRepository,
	enricher enrich.Enricher,
	enrichTimeout time.Duration,
	trail *audit.Trail,
	log *zap.Logger,
) *VaultServiceImpl {
	if enrichTimeout <= 0 {
		enrichTimeout = 5 * time.Second
	}
	if trail == nil {
		trail = audit.New(log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VaultServiceImpl{
		records:       records,
		providers:     providers,
		linked:        linked,
		settings:      settings,
		enricher:      enricher,
		enrichTimeout: enrichTimeout,
		trail:         trail,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
		now:           time.Now,
	}
}

// Upload validates the input, assigns id and timestamps, runs enrichment
// and persists. Enrichment failures degrade the record instead of
// failing the upload; persistence survives callers that abandon ctx
// after the enrichment window.
func (s *VaultServiceImpl) Upload(ctx context.Context, accountID uuid.UUID, in model.RecordInput) (*model.MedicalRecord, error) {
	if accountID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty account id", errs.ErrValidation)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown record type %q", errs.ErrValidation, in.Type)
	}
	if in.UploadType == "" {
		in.UploadType = model.UploadDocument
	}
	if !in.UploadType.Valid() {
		return nil, fmt.Errorf("%w: unknown upload type %q", errs.ErrValidation, in.UploadType)
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	rec := model.MedicalRecord{
		ID:          id,
		Title:       in.Title,
		Date:        date,
		Type:        in.Type,
		Provider:    in.Provider,
		Description: in.Description,
		UploadType:  in.UploadType,
		CreatedAt:   s.now().UTC(),
	}

	rec.Metadata = s.enrichRecord(ctx, rec)
	s.trail.Record(&rec, accountID, audit.ActionCreated)

	// The record must land even if the caller gave up waiting on enrichment.
	if err := s.records.Save(context.WithoutCancel(ctx), accountID, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ImportFHIR parses a FHIR document and uploads each resource. The import
// is all-or-nothing on parse errors but per-record on upload errors:
// records stored before a failure stay stored.
func (s *VaultServiceImpl) ImportFHIR(ctx context.Context, accountID uuid.UUID, doc []byte) ([]model.MedicalRecord, error) {
	inputs, err := fhirimport.Parse(doc)
	if err != nil {
		return nil, err
	}
	out := make([]model.MedicalRecord, 0, len(inputs))
	for i, in := range inputs {
		rec, err := s.Upload(ctx, accountID, in)
		if err != nil {
			return out, fmt.Errorf("resource %d: %w", i, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *VaultServiceImpl) ListRecords(ctx context.Context, accountID uuid.UUID) ([]model.MedicalRecord, error) {
	return s.records.ListAll(ctx, accountID)
}

func (s *VaultServiceImpl) RecentRecords(ctx context.Context, accountID uuid.UUID, limit int) ([]model.MedicalRecord, error) {
	return s.records.ListRecent(ctx, accountID, limit)
}

// GetRecord appends a viewed event to the access history and persists it
// before returning the record.
func (s *VaultServiceImpl) GetRecord(ctx context.Context, accountID, recordID uuid.UUID) (*model.MedicalRecord, error) {
	rec, err := s.records.Get(ctx, accountID, recordID)
	if err != nil {
		return nil, err
	}
	s.trail.Record(rec, accountID, audit.ActionViewed)
	if err := s.records.Save(ctx, accountID, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *VaultServiceImpl) DeleteRecord(ctx context.Context, accountID, recordID uuid.UUID) error {
	if err := s.records.Delete(ctx, accountID, recordID); err != nil {
		return err
	}
	s.trail.Event(accountID, recordID, audit.ActionDeleted)
	return nil
}

func (s *VaultServiceImpl) Providers(ctx context.Context, accountID uuid.UUID) ([]model.Provider, error) {
	return s.providers.List(ctx, accountID)
}

func (s *VaultServiceImpl) UpsertProvider(ctx context.Context, accountID uuid.UUID, in model.ProviderInput) (*model.Provider, error) {
	if in.ID == uuid.Nil && in.Name == "" {
		return nil, fmt.Errorf("%w: provider name required", errs.ErrValidation)
	}
	return s.providers.Upsert(ctx, accountID, in)
}

func (s *VaultServiceImpl) DeleteProvider(ctx context.Context, accountID, providerID uuid.UUID) error {
	return s.providers.Delete(ctx, accountID, providerID)
}

func (s *VaultServiceImpl) LinkedAccounts(ctx context.Context, primaryID uuid.UUID) ([]model.LinkedAccount, error) {
	return s.linked.List(ctx, primaryID)
}

func (s *VaultServiceImpl) AddLinkedAccount(ctx context.Context, primaryID uuid.UUID, in model.LinkedAccountInput) (*model.LinkedAccount, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return s.linked.Add(ctx, primaryID, in)
}

func (s *VaultServiceImpl) RemoveLinkedAccount(ctx context.Context, primaryID, linkedID uuid.UUID) error {
	return s.linked.Remove(ctx, primaryID, linkedID)
}

func (s *VaultServiceImpl) Settings(ctx context.Context, accountID uuid.UUID) (model.Settings, error) {
	return s.settings.Get(ctx, accountID)
}

func (s *VaultServiceImpl) UpdateSettings(ctx context.Context, accountID uuid.UUID, patch model.SettingsPatch) (model.Settings, error) {
	return s.settings.Update(ctx, accountID, patch)
}

func (s *VaultServiceImpl) MedicationInteractions(ctx context.Context, accountID uuid.UUID) ([]enrich.Interaction, error) {
	recs, err := s.records.ListAll(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return enrich.AnalyzeMedicationInteractions(recs), nil
}

func (s *VaultServiceImpl) Recommendations(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	recs, err := s.records.ListAll(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return enrich.HealthRecommendations(recs), nil
}

func (s *VaultServiceImpl) Ask(ctx context.Context, accountID uuid.UUID, question string) (string, error) {
	recs, err := s.records.ListAll(ctx, accountID)
	if err != nil {
		return "", err
	}
	return enrich.AskAssistant(question, recs), nil
}

// enrichRecord runs the enricher inside a bounded window and degrades to
// an unanalyzed record on any failure, including panics.
func (s *VaultServiceImpl) enrichRecord(ctx context.Context, rec model.MedicalRecord) *model.RecordMetadata {
	if s.enricher == nil {
		return &model.RecordMetadata{Note: "analysis not configured"}
	}
	meta, err := s.runEnricher(ctx, rec)
	if err != nil {
		s.log.Warn("enrichment degraded",
			zap.String("record", rec.ID.String()),
			zap.Error(err),
		)
		return &model.RecordMetadata{Note: "analysis unavailable; record stored without enrichment"}
	}
	return meta
}

func (s *VaultServiceImpl) runEnricher(ctx context.Context, rec model.MedicalRecord) (meta *model.RecordMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("op", "enrich"),
			)
			err = fmt.Errorf("%w: analysis panic", errs.ErrEnrichment)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.enrichTimeout)
	defer cancel()
	return s.enricher.ProcessUploadedRecord(ctx, rec)
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: bad date %q", errs.ErrValidation, raw)
}
