package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medvault/medvault/internal/model"
)

// Read-only consumers of record listings. They impose no invariant on the
// write path and operate purely on data the caller already fetched.

// Interaction flags a potentially risky medication pair.
type Interaction struct {
	MedicationA string `json:"medicationA"`
	MedicationB string `json:"medicationB"`
	Severity    string `json:"severity"`
	Advice      string `json:"advice"`
}

// knownInteractions is a minimal offline pair table keyed by sorted,
// lower-cased medication names.
var knownInteractions = map[[2]string]Interaction{
	{"ibuprofen", "warfarin"}: {
		Severity: "high",
		Advice:   "NSAIDs increase bleeding risk with anticoagulants; consult your provider.",
	},
	{"lisinopril", "spironolactone"}: {
		Severity: "moderate",
		Advice:   "Combined use can raise potassium levels; periodic labs recommended.",
	},
	{"metformin", "prednisone"}: {
		Severity: "moderate",
		Advice:   "Steroids can raise blood glucose and blunt metformin control.",
	},
}

// AnalyzeMedicationInteractions scans medications across enriched records
// and reports known pairwise interactions.
func AnalyzeMedicationInteractions(records []model.MedicalRecord) []Interaction {
	seen := map[string]bool{}
	var meds []string
	for _, rec := range records {
		if rec.Metadata == nil {
			continue
		}
		for _, m := range rec.Metadata.Medications {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			meds = append(meds, m)
		}
	}
	sort.Strings(meds)

	var out []Interaction
	for i := 0; i < len(meds); i++ {
		for j := i + 1; j < len(meds); j++ {
			if hit, ok := knownInteractions[[2]string{meds[i], meds[j]}]; ok {
				hit.MedicationA = meds[i]
				hit.MedicationB = meds[j]
				out = append(out, hit)
			}
		}
	}
	return out
}

// HealthRecommendations derives simple follow-up suggestions from the
// record mix.
func HealthRecommendations(records []model.MedicalRecord) []string {
	var recs []string
	counts := map[model.RecordType]int{}
	var pendingFollowUps int
	for _, r := range records {
		counts[r.Type]++
		if r.Metadata != nil && r.Metadata.FollowUp != "" {
			pendingFollowUps++
		}
	}
	if counts[model.RecordLab] == 0 {
		recs = append(recs, "No lab results on file; consider uploading your most recent blood work.")
	}
	if counts[model.RecordImmunization] == 0 {
		recs = append(recs, "No immunization records on file; an up-to-date vaccine history helps providers.")
	}
	if pendingFollowUps > 0 {
		recs = append(recs, fmt.Sprintf("%d record(s) note a follow-up; review them with your provider.", pendingFollowUps))
	}
	if len(records) == 0 {
		recs = append(recs, "Your vault is empty; upload a document or import from your provider to get started.")
	}
	return recs
}

// AskAssistant answers a free-form question from the records the caller
// already holds. Offline fallback: summarizes what is on file for the
// topic instead of calling the hosted assistant.
func AskAssistant(question string, records []model.MedicalRecord) string {
	q := strings.ToLower(question)
	var matched []model.MedicalRecord
	for _, r := range records {
		hay := strings.ToLower(r.Title + " " + r.Description + " " + string(r.Type))
		for _, w := range strings.Fields(q) {
			w = strings.Trim(w, "?.,!")
			if len(w) >= 4 && strings.Contains(hay, w) {
				matched = append(matched, r)
				break
			}
		}
	}
	if len(matched) == 0 {
		return "I could not find records related to that question. Try asking about a document you have uploaded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d related record(s):\n", len(matched))
	for _, r := range matched {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", r.Title, r.Type, r.Date.Format("2006-01-02"))
	}
	b.WriteString("This is a summary of your own records, not medical advice.")
	return b.String()
}
