// Package fhirimport converts FHIR R4 JSON exported by patient portals
// into record inputs. It reads only the handful of fields the vault
// stores and ignores the rest of the resource.
package fhirimport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/model"
)

type resource struct {
	ResourceType string `json:"resourceType"`
	Code         *struct {
		Text string `json:"text"`
	} `json:"code"`
	VaccineCode *struct {
		Text string `json:"text"`
	} `json:"vaccineCode"`
	MedicationCodeableConcept *struct {
		Text string `json:"text"`
	} `json:"medicationCodeableConcept"`
	EffectiveDateTime  string `json:"effectiveDateTime"`
	OccurrenceDateTime string `json:"occurrenceDateTime"`
	AuthoredOn         string `json:"authoredOn"`
	Issued             string `json:"issued"`
	Period             *struct {
		Start string `json:"start"`
	} `json:"period"`
	Performer []struct {
		Display string `json:"display"`
	} `json:"performer"`
	Conclusion string `json:"conclusion"`
}

type bundle struct {
	ResourceType string `json:"resourceType"`
	Entry        []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

// typeFor maps a FHIR resource type onto a vault record type.
func typeFor(resourceType string) model.RecordType {
	switch resourceType {
	case "Observation", "DiagnosticReport":
		return model.RecordLab
	case "ImagingStudy":
		return model.RecordImaging
	case "Encounter":
		return model.RecordVisit
	case "MedicationRequest", "MedicationStatement":
		return model.RecordPrescription
	case "Immunization":
		return model.RecordImmunization
	default:
		return model.RecordOther
	}
}

// Parse converts a FHIR document into record inputs. The document may be
// a Bundle or a single resource. Malformed JSON and resources without a
// resourceType return ErrValidation.
func Parse(data []byte) ([]model.RecordInput, error) {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: fhir document: %v", errs.ErrValidation, err)
	}
	if b.ResourceType == "" {
		return nil, fmt.Errorf("%w: fhir document has no resourceType", errs.ErrValidation)
	}
	if b.ResourceType != "Bundle" {
		in, err := parseResource(data)
		if err != nil {
			return nil, err
		}
		return []model.RecordInput{in}, nil
	}

	var out []model.RecordInput
	for i, e := range b.Entry {
		in, err := parseResource(e.Resource)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func parseResource(data []byte) (model.RecordInput, error) {
	var r resource
	if err := json.Unmarshal(data, &r); err != nil {
		return model.RecordInput{}, fmt.Errorf("%w: fhir resource: %v", errs.ErrValidation, err)
	}
	if r.ResourceType == "" {
		return model.RecordInput{}, fmt.Errorf("%w: fhir resource has no resourceType", errs.ErrValidation)
	}

	in := model.RecordInput{
		Title:       title(r),
		Date:        date(r),
		Type:        typeFor(r.ResourceType),
		Description: strings.TrimSpace(r.Conclusion),
		UploadType:  model.UploadFHIR,
	}
	if len(r.Performer) > 0 {
		in.Provider = r.Performer[0].Display
	}
	if in.Title == "" {
		in.Title = r.ResourceType
	}
	if in.Date == "" {
		return model.RecordInput{}, fmt.Errorf("%w: fhir resource %s has no date", errs.ErrValidation, r.ResourceType)
	}
	return in, nil
}

func title(r resource) string {
	for _, c := range []*struct {
		Text string `json:"text"`
	}{r.Code, r.VaccineCode, r.MedicationCodeableConcept} {
		if c != nil && c.Text != "" {
			return c.Text
		}
	}
	return ""
}

// date picks the first timestamp the resource carries and trims it to a
// calendar day. FHIR instants are RFC3339; upload re-parses the result.
func date(r resource) string {
	for _, d := range []string{r.EffectiveDateTime, r.OccurrenceDateTime, r.AuthoredOn, r.Issued} {
		if d != "" {
			return day(d)
		}
	}
	if r.Period != nil && r.Period.Start != "" {
		return day(r.Period.Start)
	}
	return ""
}

func day(ts string) string {
	if len(ts) > 10 && ts[10] == 'T' {
		return ts[:10]
	}
	return ts
}
