package handlers

import (
	"context"
	"time"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// ScanCache stores scan results keyed by page content
type ScanCache interface {
	GetScan(ctx context.Context, key string) (*domain.ScanResult, error)
	SetScan(ctx context.Context, key string, result *domain.ScanResult, ttl time.Duration) error
}

// ResumeStore holds the selected resume of each user
type ResumeStore interface {
	GetResume(ctx context.Context, id string) (*domain.ResumeContent, error)
	SetResume(ctx context.Context, resume *domain.ResumeContent) error
}

// SnapshotArchiver stores the markup of pages that yielded no form
type SnapshotArchiver interface {
	Archive(ctx context.Context, record *domain.ScanRecord, markup string, result *domain.ScanResult) (string, error)
}

// CacheRecorder receives scan cache hits and misses
type CacheRecorder interface {
	RecordScanCache(hit bool)
}

// WorkflowRecorder receives workflow starts
type WorkflowRecorder interface {
	RecordWorkflowStart(workflowType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordScanCache(bool)       {}
func (nopRecorder) RecordWorkflowStart(string) {}
