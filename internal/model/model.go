// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents the authenticated profile persisted on the device.
// The session layer owns it; screens only ever see a transient copy.
type User struct {
	ID               uuid.UUID `json:"id"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Provider         string    `json:"provider"` // auth method: email, google, apple
	BiometricEnabled bool      `json:"biometricEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RecordType classifies a medical record.
type RecordType string

// Known record types.
const (
	RecordLab          RecordType = "lab"
	RecordImaging      RecordType = "imaging"
	RecordVisit        RecordType = "visit"
	RecordPrescription RecordType = "prescription"
	RecordImmunization RecordType = "immunization"
	RecordOther        RecordType = "other"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	switch t {
	case RecordLab, RecordImaging, RecordVisit, RecordPrescription, RecordImmunization, RecordOther:
		return true
	}
	return false
}

// UploadType tells how a record entered the vault.
type UploadType string

// Known upload channels.
const (
	UploadImage    UploadType = "image"
	UploadDocument UploadType = "document"
	UploadCamera   UploadType = "camera"
	UploadFHIR     UploadType = "fhir"
)

// Valid reports whether u is one of the known upload channels.
func (u UploadType) Valid() bool {
	switch u {
	case UploadImage, UploadDocument, UploadCamera, UploadFHIR:
		return true
	}
	return false
}

// RecordMetadata holds AI-produced enrichment. AIAnalyzed is false when
// enrichment failed or was skipped; Note carries the degradation reason.
type RecordMetadata struct {
	AIAnalyzed     bool      `json:"aiAnalyzed"`
	Keywords       []string  `json:"keywords,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Medications    []string  `json:"medications,omitempty"`
	FollowUp       string    `json:"followUp,omitempty"`
	ProcessingDate time.Time `json:"processingDate,omitempty"`
	Note           string    `json:"note,omitempty"`
}

// AccessEvent is a single entry in a record's access history.
type AccessEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    string    `json:"userId"`
}

// HIPAAInfo tracks per-record access for compliance reporting.
// AccessHistory is append-only; the core never rewrites or truncates it.
type HIPAAInfo struct {
	LastAccessed  time.Time     `json:"lastAccessed"`
	AccessHistory []AccessEvent `json:"accessHistory"`
}

// MedicalRecord is a stored health document, keyed by owning account.
type MedicalRecord struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Date        time.Time       `json:"date"`
	Type        RecordType      `json:"type"`
	Provider    string          `json:"provider"`
	Description string          `json:"description"`
	UploadType  UploadType      `json:"uploadType"`
	Metadata    *RecordMetadata `json:"metadata,omitempty"`
	HIPAA       HIPAAInfo       `json:"hipaaInfo"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// RecordInput is the shape accepted by upload before ids and timestamps
// are assigned. Date accepts YYYY-MM-DD or RFC3339.
type RecordInput struct {
	Title       string     `json:"title" validate:"required"`
	Date        string     `json:"date" validate:"required"`
	Type        RecordType `json:"type" validate:"required"`
	Provider    string     `json:"provider"`
	Description string     `json:"description"`
	UploadType  UploadType `json:"uploadType"`
}

// Provider is a tracked healthcare provider.
type Provider struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Facility  string    `json:"facility"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProviderInput upserts a provider. A nil ID creates a new entry;
// an existing ID merges non-empty fields into the stored provider.
type ProviderInput struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Facility  string    `json:"facility"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Notes     string    `json:"notes"`
}

// LinkedAccount is a family-member sub-profile under a primary user.
// Its id partitions record collections exactly like a primary account id.
type LinkedAccount struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Relationship string    `json:"relationship"`
	DateOfBirth  string    `json:"dateOfBirth"`
	CreatedBy    uuid.UUID `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LinkedAccountInput is the shape accepted when adding a family member.
type LinkedAccountInput struct {
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	Relationship string `json:"relationship" validate:"required"`
	DateOfBirth  string `json:"dateOfBirth"`
}

// Settings are per-account preferences.
type Settings struct {
	DarkMode         bool   `json:"darkMode"`
	Notifications    bool   `json:"notifications"`
	AutoLock         bool   `json:"autoLock"`
	DataSharing      bool   `json:"dataSharing"`
	BiometricEnabled bool   `json:"biometricEnabled"`
	FontSize         string `json:"fontSize"`
	HighContrast     bool   `json:"highContrast"`
}

// DefaultSettings returns the preferences applied on first read.
func DefaultSettings() Settings {
	return Settings{
		Notifications: true,
		AutoLock:      true,
		FontSize:      "medium",
	}
}

// SettingsPatch is a partial settings update. Nil fields leave the
// stored value unchanged.
type SettingsPatch struct {
	DarkMode         *bool   `json:"darkMode,omitempty"`
	Notifications    *bool   `json:"notifications,omitempty"`
	AutoLock         *bool   `json:"autoLock,omitempty"`
	DataSharing      *bool   `json:"dataSharing,omitempty"`
	BiometricEnabled *bool   `json:"biometricEnabled,omitempty"`
	FontSize         *string `json:"fontSize,omitempty"`
	HighContrast     *bool   `json:"highContrast,omitempty"`
}

// Apply merges the patch into s and returns the result.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.DarkMode != nil {
		s.DarkMode = *p.DarkMode
	}
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	if p.AutoLock != nil {
		s.AutoLock = *p.AutoLock
	}
	if p.DataSharing != nil {
		s.DataSharing = *p.DataSharing
	}
	if p.BiometricEnabled != nil {
		s.BiometricEnabled = *p.BiometricEnabled
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	if p.HighContrast != nil {
		s.HighContrast = *p.HighContrast
	}
	return s
}
