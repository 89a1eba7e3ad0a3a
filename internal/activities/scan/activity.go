package scan

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/browser"
	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/workflows"
)

// LivePage is a browser tab the activity scans and writes back to
type LivePage interface {
	formscan.Page
	Apply(ctx context.Context, mutations []domain.Mutation) (int, error)
	Content() (string, error)
	Close() error
}

// Opener opens rawURL in a new tab
type Opener func(ctx context.Context, rawURL string) (LivePage, error)

// BrowserOpener opens tabs in b
func BrowserOpener(b *browser.Browser) Opener {
	return func(ctx context.Context, rawURL string) (LivePage, error) {
		page, err := b.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
}

// ResumeLoader loads stored resumes
type ResumeLoader interface {
	GetResume(ctx context.Context, id string) (*domain.ResumeContent, error)
}

// SnapshotArchiver stores the markup of pages that yielded no form
type SnapshotArchiver interface {
	Archive(ctx context.Context, record *domain.ScanRecord, markup string, result *domain.ScanResult) (string, error)
}

// Recorder receives activity metrics
type Recorder interface {
	RecordActivityExecution(activityType, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordActivityExecution(string, string) {}

// Config holds the activity's collaborators. Only Open and Scanner are
// required.
type Config struct {
	Open      Opener
	Scanner   *formscan.Scanner
	Resumes   ResumeLoader
	History   domain.ScanRepository
	Snapshots SnapshotArchiver
	Recorder  Recorder
}

// Activity scans one live page
type Activity struct {
	open      Opener
	scanner   *formscan.Scanner
	resumes   ResumeLoader
	history   domain.ScanRepository
	snapshots SnapshotArchiver
	recorder  Recorder
	logger    *zap.Logger
}

// NewActivity creates a new scan activity
func NewActivity(cfg Config, logger *zap.Logger) (*Activity, error) {
	if cfg.Open == nil || cfg.Scanner == nil {
		return nil, errors.New("scan activity requires an opener and a scanner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Activity{
		open:      cfg.Open,
		scanner:   cfg.Scanner,
		resumes:   cfg.Resumes,
		history:   cfg.History,
		snapshots: cfg.Snapshots,
		recorder:  cfg.Recorder,
		logger:    logger,
	}, nil
}

// Execute opens the page, scans it and replays the scan's attribute writes
// onto the live page. A page whose form lives in an iframe is scanned once
// more after the redirect; a second redirect is reported, not followed.
func (a *Activity) Execute(ctx context.Context, input workflows.ScanPageInput) (*workflows.ScanPageOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Starting page scan", "batch_id", input.BatchID, "url", input.URL)

	out, err := a.execute(ctx, input)
	status := "success"
	if err != nil {
		status = "failure"
	}
	a.recorder.RecordActivityExecution(workflows.ScanPageActivityName, status)
	return out, err
}

func (a *Activity) execute(ctx context.Context, input workflows.ScanPageInput) (*workflows.ScanPageOutput, error) {
	var resume formscan.ResumeCounter
	if input.ResumeID != "" && a.resumes != nil {
		r, err := a.resumes.GetResume(ctx, input.ResumeID)
		if err != nil {
			return nil, fmt.Errorf("loading resume: %w", err)
		}
		if r == nil {
			return nil, temporal.NewNonRetryableApplicationError("resume not found", domain.ErrCodeNotFound, domain.ErrResumeNotFound(input.ResumeID))
		}
		resume = r
	}

	activity.RecordHeartbeat(ctx, "opening page")
	page, err := a.open(ctx, input.URL)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()

	activity.RecordHeartbeat(ctx, "scanning")
	result, err := a.scanAndApply(ctx, page, resume)
	if err != nil {
		return nil, err
	}

	out := &workflows.ScanPageOutput{URL: input.URL}
	if result.RedirectURL != "" {
		// The adapter has already navigated the tab to the frame's document
		out.RedirectedTo = result.RedirectURL
		activity.RecordHeartbeat(ctx, "following redirect")
		if result, err = a.scanAndApply(ctx, page, resume); err != nil {
			return nil, err
		}
	}

	record := domain.NewScanRecord(result)
	if result.Empty() && result.RedirectURL == "" && a.snapshots != nil {
		out.SnapshotKey = a.archive(ctx, page, record, result)
		record.SnapshotKey = out.SnapshotKey
	}
	if a.history != nil {
		if err := a.history.Save(ctx, record); err != nil {
			a.logger.Warn("saving scan history failed", zap.String("url", input.URL), zap.Error(err))
		}
	}

	out.ScanID = result.ScanID
	out.Adapter = result.Adapter
	out.Outcome = result.Outcome()
	out.FormCount = len(result.Forms)
	out.FieldCount = result.FieldCount()
	return out, nil
}

func (a *Activity) scanAndApply(ctx context.Context, page LivePage, resume formscan.ResumeCounter) (*domain.ScanResult, error) {
	result, err := a.scanner.Scan(ctx, page, resume)
	if err != nil {
		return nil, fmt.Errorf("scanning page: %w", err)
	}
	if len(result.Mutations) > 0 {
		if _, err := page.Apply(ctx, result.Mutations); err != nil {
			a.logger.Warn("replaying mutations failed", zap.String("url", result.URL), zap.Error(err))
		}
	}
	return result, nil
}

func (a *Activity) archive(ctx context.Context, page LivePage, record *domain.ScanRecord, result *domain.ScanResult) string {
	markup, err := page.Content()
	if err != nil {
		a.logger.Warn("reading page markup failed", zap.String("url", record.URL), zap.Error(err))
		return ""
	}
	key, err := a.snapshots.Archive(ctx, record, markup, result)
	if err != nil {
		a.logger.Warn("archiving snapshot failed", zap.String("url", record.URL), zap.Error(err))
		return ""
	}
	return key
}
