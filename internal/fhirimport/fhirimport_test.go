package fhirimport

import (
	"errors"
	"testing"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/model"
)

func TestParse_SingleObservation(t *testing.T) {
	t.Parallel()
	doc := `{
		"resourceType": "Observation",
		"code": {"text": "Hemoglobin A1c"},
		"effectiveDateTime": "2024-03-15T09:30:00Z",
		"performer": [{"display": "Quest Diagnostics"}]
	}`
	out, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("records: %d", len(out))
	}
	in := out[0]
	if in.Title != "Hemoglobin A1c" || in.Type != model.RecordLab || in.Date != "2024-03-15" {
		t.Fatalf("input: %+v", in)
	}
	if in.Provider != "Quest Diagnostics" || in.UploadType != model.UploadFHIR {
		t.Fatalf("input: %+v", in)
	}
}

func TestParse_Bundle(t *testing.T) {
	t.Parallel()
	doc := `{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "Immunization", "vaccineCode": {"text": "Influenza"}, "occurrenceDateTime": "2023-10-01"}},
			{"resource": {"resourceType": "MedicationRequest", "medicationCodeableConcept": {"text": "Lisinopril 10mg"}, "authoredOn": "2024-01-20"}},
			{"resource": {"resourceType": "Encounter", "period": {"start": "2024-02-02T14:00:00Z"}}}
		]
	}`
	out, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("records: %d", len(out))
	}
	if out[0].Type != model.RecordImmunization || out[1].Type != model.RecordPrescription || out[2].Type != model.RecordVisit {
		t.Fatalf("types: %q %q %q", out[0].Type, out[1].Type, out[2].Type)
	}
	if out[2].Title != "Encounter" || out[2].Date != "2024-02-02" {
		t.Fatalf("encounter fallback: %+v", out[2])
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{{`},
		{"no resource type", `{"code": {"text": "x"}}`},
		{"resource without date", `{"resourceType": "Observation", "code": {"text": "x"}}`},
		{"bad bundle entry", `{"resourceType": "Bundle", "entry": [{"resource": {"code": {}}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestParse_UnknownResourceType(t *testing.T) {
	t.Parallel()
	doc := `{"resourceType": "AllergyIntolerance", "code": {"text": "Penicillin"}, "recordedDate": "2020-01-01", "effectiveDateTime": "2020-01-01"}`
	out, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out[0].Type != model.RecordOther {
		t.Fatalf("type: %q", out[0].Type)
	}
}
