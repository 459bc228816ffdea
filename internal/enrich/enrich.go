// Package enrich integrates the external AI collaborator. The collaborator
// is best-effort: upload degrades to an unenriched record when it fails,
// and the read-only insight helpers never touch the write path.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medvault/medvault/internal/errs"
	"github.com/medvault/medvault/internal/model"
)

// Enricher analyzes an uploaded record and produces metadata for it.
type Enricher interface {
	// ProcessUploadedRecord may fail or time out; callers degrade gracefully.
	ProcessUploadedRecord(ctx context.Context, rec model.MedicalRecord) (*model.RecordMetadata, error)
}

// TokenSource supplies a bearer token for collaborator calls.
type TokenSource func() (string, error)

// HTTPEnricher calls a hosted analysis endpoint.
type HTTPEnricher struct {
	baseURL string
	client  *http.Client
	token   TokenSource
	log     *zap.Logger
}

// NewHTTP constructs an HTTPEnricher. token may be nil for
// unauthenticated endpoints.
func NewHTTP(baseURL string, timeout time.Duration, token TokenSource, log *zap.Logger) *HTTPEnricher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEnricher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
		log:     log,
	}
}

type analyzeRequest struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type analyzeResponse struct {
	Keywords    []string `json:"keywords"`
	Summary     string   `json:"summary"`
	Medications []string `json:"medications"`
	FollowUp    string   `json:"followUp"`
}

// ProcessUploadedRecord posts the record to the analysis endpoint.
func (e *HTTPEnricher) ProcessUploadedRecord(ctx context.Context, rec model.MedicalRecord) (*model.RecordMetadata, error) {
	body, err := json.Marshal(analyzeRequest{
		Title:       rec.Title,
		Type:        string(rec.Type),
		Provider:    rec.Provider,
		Description: rec.Description,
		Date:        rec.Date.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != nil {
		tok, err := e.token()
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", errs.ErrEnrichment, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEnrichment, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errs.ErrEnrichment, resp.StatusCode)
	}
	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errs.ErrEnrichment, err)
	}
	return &model.RecordMetadata{
		AIAnalyzed:     true,
		Keywords:       out.Keywords,
		Summary:        out.Summary,
		Medications:    out.Medications,
		FollowUp:       out.FollowUp,
		ProcessingDate: time.Now().UTC(),
	}, nil
}

// Static produces deterministic offline enrichment from the record text.
// It stands in for the hosted collaborator in tests and offline installs.
type Static struct{}

// ProcessUploadedRecord extracts keywords from the title and description.
func (Static) ProcessUploadedRecord(ctx context.Context, rec model.MedicalRecord) (*model.RecordMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEnrichment, err)
	}
	seen := map[string]bool{}
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(rec.Title + " " + rec.Description)) {
		w = strings.Trim(w, ".,;:()")
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)
	if len(keywords) > 8 {
		keywords = keywords[:8]
	}
	return &model.RecordMetadata{
		AIAnalyzed:     true,
		Keywords:       keywords,
		Summary:        fmt.Sprintf("%s record from %s", rec.Type, rec.Date.Format("2006-01-02")),
		ProcessingDate: time.Now().UTC(),
	}, nil
}

// Failing always errors; used to exercise degraded-upload paths.
type Failing struct{}

// ProcessUploadedRecord always reports an enrichment failure.
func (Failing) ProcessUploadedRecord(context.Context, model.MedicalRecord) (*model.RecordMetadata, error) {
	return nil, errs.ErrEnrichment
}
