package workflows

import (
	"time"

	"github.com/google/uuid"
)

// Batch statuses
const (
	BatchStatusCompleted           = "completed"
	BatchStatusCompletedWithErrors = "completed_with_errors"
	BatchStatusEmpty               = "empty"
)

// BatchScanInput is the input for the batch scan workflow
type BatchScanInput struct {
	BatchID  string   `json:"batch_id"`
	URLs     []string `json:"urls"`
	ResumeID string   `json:"resume_id,omitempty"`
}

// BatchScanOutput is the output of the batch scan workflow
type BatchScanOutput struct {
	BatchID       string           `json:"batch_id"`
	Status        string           `json:"status"`
	Pages         []ScanPageOutput `json:"pages"`
	Scanned       int              `json:"scanned"`
	Failed        int              `json:"failed"`
	FormsFound    int              `json:"forms_found"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	TotalDuration time.Duration    `json:"total_duration"`
}

// ScanPageInput is the input for scanning one page
type ScanPageInput struct {
	BatchID  string `json:"batch_id"`
	URL      string `json:"url"`
	ResumeID string `json:"resume_id,omitempty"`
}

// ScanPageOutput summarizes the scan of one page. Error is set when the
// page could not be scanned.
type ScanPageOutput struct {
	URL          string    `json:"url"`
	ScanID       uuid.UUID `json:"scan_id,omitempty"`
	Adapter      string    `json:"adapter,omitempty"`
	Outcome      string    `json:"outcome"`
	FormCount    int       `json:"form_count"`
	FieldCount   int       `json:"field_count"`
	RedirectedTo string    `json:"redirected_to,omitempty"`
	SnapshotKey  string    `json:"snapshot_key,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// BatchProgress is returned by the progress query
type BatchProgress struct {
	Total   int    `json:"total"`
	Done    int    `json:"done"`
	Failed  int    `json:"failed"`
	Current string `json:"current,omitempty"`
}
