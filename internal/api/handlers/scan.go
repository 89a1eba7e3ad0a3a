package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/formscan"
	"github.com/cvtailor/cvtailor/internal/prefill"
	rediscache "github.com/cvtailor/cvtailor/internal/repository/redis"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

// ScanHandlerConfig holds the scan handler's collaborators. Everything but
// the scanner is optional.
type ScanHandlerConfig struct {
	Scanner   *formscan.Scanner
	Cache     ScanCache
	CacheTTL  time.Duration
	Resumes   ResumeStore
	History   domain.ScanRepository
	Snapshots SnapshotArchiver
	Metrics   CacheRecorder
	Timeout   time.Duration
	Logger    *zap.Logger
}

// ScanHandler discovers the application forms of submitted pages
type ScanHandler struct {
	scanner   *formscan.Scanner
	cache     ScanCache
	cacheTTL  time.Duration
	resumes   ResumeStore
	history   domain.ScanRepository
	snapshots SnapshotArchiver
	metrics   CacheRecorder
	timeout   time.Duration
	logger    *zap.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(cfg ScanHandlerConfig) *ScanHandler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = rediscache.ScanTTL
	}
	return &ScanHandler{
		scanner:   cfg.Scanner,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		resumes:   cfg.Resumes,
		history:   cfg.History,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// ScanRequest is the request body for scanning a page
type ScanRequest struct {
	URL      string `json:"url"`
	HTML     string `json:"html"`
	ResumeID string `json:"resume_id,omitempty"`
}

// Validate validates the request
func (r ScanRequest) Validate() error {
	if err := validatePageURL(r.URL); err != nil {
		return err
	}
	if strings.TrimSpace(r.HTML) == "" {
		return domain.ValidationError("html", "html is required")
	}
	return nil
}

// Scan handles POST /api/v1/forms/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	ctx := r.Context()
	key := ""
	if req.ResumeID == "" {
		// Results depend on the resume through the repeated-section counts,
		// so only resume-less scans are cached.
		key = rediscache.ScanKey(req.URL, req.HTML)
		if cached := h.cached(ctx, key); cached != nil {
			httputil.JSON(w, http.StatusOK, cached)
			return
		}
	}

	var resume formscan.ResumeCounter
	if req.ResumeID != "" {
		content, err := h.loadResume(ctx, req.ResumeID)
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		resume = content
	}

	page, err := formscan.NewStaticPage(req.URL, strings.NewReader(req.HTML))
	if err != nil {
		httputil.ErrorFromDomain(w, domain.ValidationError("html", err.Error()))
		return
	}

	scanCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.scanner.Scan(scanCtx, page, resume)
	if err != nil {
		h.logger.Error("Scan failed", zap.String("url", req.URL), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	h.record(ctx, req, result)

	if key != "" && h.cache != nil {
		if err := h.cache.SetScan(ctx, key, result, h.cacheTTL); err != nil {
			h.logger.Warn("Failed to cache scan", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, result)
}

// PrefillRequest is the request body for prefilling forms from a resume
type PrefillRequest struct {
	Forms    []domain.ShadowFormResult `json:"forms"`
	ResumeID string                    `json:"resume_id,omitempty"`
	Details  map[string]string         `json:"details,omitempty"`
}

// Prefill handles POST /api/v1/forms/prefill. Explicit details win over the
// stored resume's.
func (h *ScanHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	var req PrefillRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if len(req.Forms) == 0 {
		httputil.ErrorFromDomain(w, domain.ValidationError("forms", "at least one form is required"))
		return
	}
	if req.ResumeID == "" && len(req.Details) == 0 {
		httputil.ErrorFromDomain(w, domain.ValidationError("resume_id", "resume_id or details is required"))
		return
	}

	details := make(map[string]string)
	if req.ResumeID != "" {
		content, err := h.loadResume(r.Context(), req.ResumeID)
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		for k, v := range content.Details {
			details[k] = v
		}
	}
	for k, v := range req.Details {
		details[k] = v
	}

	httputil.JSON(w, http.StatusOK, prefill.Match(req.Forms, details))
}

func (h *ScanHandler) cached(ctx context.Context, key string) *domain.ScanResult {
	if h.cache == nil {
		return nil
	}
	result, err := h.cache.GetScan(ctx, key)
	if err != nil {
		h.logger.Warn("Failed to read scan cache", zap.Error(err))
		return nil
	}
	h.metrics.RecordScanCache(result != nil)
	return result
}

func (h *ScanHandler) loadResume(ctx context.Context, id string) (*domain.ResumeContent, error) {
	if h.resumes == nil {
		return nil, domain.ErrServiceUnavailable("resume store")
	}
	content, err := h.resumes.GetResume(ctx, id)
	if err != nil {
		h.logger.Error("Failed to load resume", zap.String("resume_id", id), zap.Error(err))
		return nil, domain.ErrInternal("failed to load resume").WithCause(err)
	}
	if content == nil {
		return nil, domain.ErrResumeNotFound(id)
	}
	return content, nil
}

// record archives the markup of pages that yielded no form and appends the
// scan to the history. Failures are logged and never fail the request.
func (h *ScanHandler) record(ctx context.Context, req ScanRequest, result *domain.ScanResult) {
	if h.history == nil && h.snapshots == nil {
		return
	}

	record := domain.NewScanRecord(result)
	if result.Empty() && result.RedirectURL == "" && h.snapshots != nil {
		key, err := h.snapshots.Archive(ctx, record, req.HTML, result)
		if err != nil {
			h.logger.Warn("Failed to archive snapshot", zap.String("url", req.URL), zap.Error(err))
		}
		record.SnapshotKey = key
	}

	if h.history == nil {
		return
	}
	if err := h.history.Save(ctx, record); err != nil {
		h.logger.Warn("Failed to save scan history", zap.String("url", req.URL), zap.Error(err))
	}
}

func validatePageURL(raw string) error {
	if raw == "" {
		return domain.ValidationError("url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ValidationError("url", "url must be an absolute http(s) URL")
	}
	return nil
}
