package domain

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Scan outcomes
const (
	OutcomeForms    = "forms"
	OutcomeEmpty    = "empty"
	OutcomeRedirect = "redirect"
	OutcomeError    = "error"
)

// Outcome classifies a finished scan
func (r *ScanResult) Outcome() string {
	switch {
	case r.RedirectURL != "":
		return OutcomeRedirect
	case r.Empty():
		return OutcomeEmpty
	default:
		return OutcomeForms
	}
}

// ScanRecord is one persisted entry of the scan history
type ScanRecord struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Host        string    `json:"host"`
	Adapter     string    `json:"adapter,omitempty"`
	Outcome     string    `json:"outcome"`
	FormCount   int       `json:"form_count"`
	FieldCount  int       `json:"field_count"`
	Failures    int       `json:"failures"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	ScannedAt   time.Time `json:"scanned_at"`

	Forms []FormSummary `json:"forms,omitempty"`
}

// FormSummary is the persisted summary of one emitted shadow form
type FormSummary struct {
	FormID     string `json:"form_id"`
	FieldCount int    `json:"field_count"`
}

// NewScanRecord summarizes a scan result for the history
func NewScanRecord(r *ScanResult) *ScanRecord {
	host := ""
	if u, err := url.Parse(r.URL); err == nil {
		host = u.Hostname()
	}
	scannedAt := r.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now().UTC()
	}
	forms := make([]FormSummary, len(r.Forms))
	for i, f := range r.Forms {
		forms[i] = FormSummary{FormID: f.FormID, FieldCount: f.FieldCount}
	}
	return &ScanRecord{
		ID:         r.ScanID,
		URL:        r.URL,
		Host:       host,
		Adapter:    r.Adapter,
		Outcome:    r.Outcome(),
		FormCount:  len(r.Forms),
		FieldCount: r.FieldCount(),
		Failures:   len(r.Failures),
		DurationMs: r.Duration.Milliseconds(),
		ScannedAt:  scannedAt,
		Forms:      forms,
	}
}

// ScanFilter narrows a history listing
type ScanFilter struct {
	Host    string
	Outcome string
	Limit   int
}

// ScanRepository persists the scan history
type ScanRepository interface {
	Save(ctx context.Context, record *ScanRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScanRecord, error)
	List(ctx context.Context, filter ScanFilter) ([]*ScanRecord, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error)
}
