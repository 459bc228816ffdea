// Package seed installs demo fixtures through the regular repositories.
// Seeding is an explicit operation; read paths never synthesize data.
package seed

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/model"
	"github.com/medvault/medvault/internal/repository"
)

// fixture ids derive from the account so reseeding overwrites instead of
// duplicating.
func fixtureID(accountID uuid.UUID, name string) uuid.UUID {
	return uuid.NewV5(accountID, "seed."+name)
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// Records returns the demo record set for an account.
func Records(accountID uuid.UUID, now time.Time) []model.MedicalRecord {
	created := now.UTC()
	return []model.MedicalRecord{
		{
			ID:          fixtureID(accountID, "cbc"),
			Title:       "Complete Blood Count",
			Date:        day("2024-01-15"),
			Type:        model.RecordLab,
			Provider:    "Dr. Sarah Chen",
			Description: "Routine CBC panel, all values within reference range.",
			UploadType:  model.UploadDocument,
			Metadata: &model.RecordMetadata{
				AIAnalyzed:     true,
				Keywords:       []string{"cbc", "hemoglobin", "routine"},
				Summary:        "Normal complete blood count.",
				ProcessingDate: created,
			},
			HIPAA: model.HIPAAInfo{
				LastAccessed: created,
				AccessHistory: []model.AccessEvent{
					{Timestamp: created, Action: "created", UserID: accountID.String()},
				},
			},
			CreatedAt: created,
		},
		{
			ID:          fixtureID(accountID, "flu-shot"),
			Title:       "Influenza Vaccine",
			Date:        day("2023-10-02"),
			Type:        model.RecordImmunization,
			Provider:    "Walgreens Pharmacy",
			Description: "Seasonal influenza vaccination, quadrivalent.",
			UploadType:  model.UploadImage,
			HIPAA: model.HIPAAInfo{
				LastAccessed: created,
				AccessHistory: []model.AccessEvent{
					{Timestamp: created, Action: "created", UserID: accountID.String()},
				},
			},
			CreatedAt: created,
		},
		{
			ID:          fixtureID(accountID, "lisinopril"),
			Title:       "Lisinopril 10mg",
			Date:        day("2024-02-20"),
			Type:        model.RecordPrescription,
			Provider:    "Dr. Sarah Chen",
			Description: "Daily for blood pressure management.",
			UploadType:  model.UploadDocument,
			Metadata: &model.RecordMetadata{
				AIAnalyzed:     true,
				Medications:    []string{"lisinopril"},
				Summary:        "ACE inhibitor prescription.",
				FollowUp:       "Recheck blood pressure in 3 months.",
				ProcessingDate: created,
			},
			HIPAA: model.HIPAAInfo{
				LastAccessed: created,
				AccessHistory: []model.AccessEvent{
					{Timestamp: created, Action: "created", UserID: accountID.String()},
				},
			},
			CreatedAt: created,
		},
	}
}

// Apply writes the demo fixtures for an account. Existing fixtures with
// the same ids are replaced; user-created data is untouched.
func Apply(ctx context.Context, accountID uuid.UUID, records repository.RecordRepository, providers repository.ProviderRepository, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for _, rec := range Records(accountID, time.Now()) {
		if err := records.Save(ctx, accountID, rec); err != nil {
			return err
		}
	}
	in := model.ProviderInput{
		Name:      "Dr. Sarah Chen",
		Specialty: "Internal Medicine",
		Facility:  "Bayview Medical Group",
		Phone:     "555-0142",
	}
	existing, err := providers.List(ctx, accountID)
	if err != nil {
		return err
	}
	for _, p := range existing {
		// Reseed merges into the fixture provider instead of duplicating it.
		if p.Name == in.Name {
			in.ID = p.ID
			break
		}
	}
	if _, err := providers.Upsert(ctx, accountID, in); err != nil {
		return err
	}
	log.Info("seeded demo fixtures", zap.String("account", accountID.String()))
	return nil
}
