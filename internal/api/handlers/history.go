package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/repository/postgres"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

// HistoryHandler serves the scan history
type HistoryHandler struct {
	repo   domain.ScanRepository
	logger *zap.Logger
}

// NewHistoryHandler creates a new history handler. repo may be nil when no
// database is configured.
func NewHistoryHandler(repo domain.ScanRepository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{repo: repo, logger: logger}
}

// List handles GET /api/v1/scans
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("scan history"))
		return
	}

	q := r.URL.Query()
	filter := domain.ScanFilter{
		Host:    q.Get("host"),
		Outcome: q.Get("outcome"),
		Limit:   httputil.QueryInt(r, "limit", postgres.DefaultListLimit, postgres.MaxListLimit),
	}
	if filter.Outcome != "" && !validOutcome(filter.Outcome) {
		httputil.ErrorFromDomain(w, domain.ValidationError("outcome", "unknown outcome: "+filter.Outcome))
		return
	}

	records, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list scans", zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrDatabase(err))
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{
		Total: len(records),
		Limit: filter.Limit,
	})
}

// Get handles GET /api/v1/scans/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("scan history"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid scan ID format", nil)
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, record)
}

// Stats handles GET /api/v1/scans/stats?since=24h
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("scan history"))
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			httputil.ErrorFromDomain(w, domain.ValidationError("since", "since must be a positive duration"))
			return
		}
		window = d
	}

	since := time.Now().UTC().Add(-window)
	counts, err := h.repo.CountByOutcome(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to count scans", zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrDatabase(err))
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"since":    since,
		"outcomes": counts,
	})
}

func validOutcome(o string) bool {
	switch o {
	case domain.OutcomeForms, domain.OutcomeEmpty, domain.OutcomeRedirect, domain.OutcomeError:
		return true
	}
	return false
}
