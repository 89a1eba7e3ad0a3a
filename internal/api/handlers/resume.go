package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

// ResumeHandler stores and serves selected resumes
type ResumeHandler struct {
	store  ResumeStore
	logger *zap.Logger
}

// NewResumeHandler creates a new resume handler
func NewResumeHandler(store ResumeStore, logger *zap.Logger) *ResumeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResumeHandler{store: store, logger: logger}
}

// PutResumeRequest is the request body for storing a resume
type PutResumeRequest struct {
	Details map[string]string    `json:"details"`
	Blocks  []domain.ResumeBlock `json:"blocks"`
}

// Put handles PUT /api/v1/resumes/{id}
func (h *ResumeHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("resume store"))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.ErrorFromDomain(w, domain.ValidationError("id", "resume id is required"))
		return
	}

	var req PutResumeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if len(req.Details) == 0 && len(req.Blocks) == 0 {
		httputil.ErrorFromDomain(w, domain.ValidationError("details", "details or blocks is required"))
		return
	}

	resume := &domain.ResumeContent{
		ID:      id,
		Details: req.Details,
		Blocks:  req.Blocks,
	}
	if err := h.store.SetResume(r.Context(), resume); err != nil {
		h.logger.Error("Failed to store resume", zap.String("resume_id", id), zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrInternal("failed to store resume").WithCause(err))
		return
	}

	httputil.JSON(w, http.StatusOK, resume)
}

// Get handles GET /api/v1/resumes/{id}
func (h *ResumeHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("resume store"))
		return
	}

	id := chi.URLParam(r, "id")
	resume, err := h.store.GetResume(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load resume", zap.String("resume_id", id), zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrInternal("failed to load resume").WithCause(err))
		return
	}
	if resume == nil {
		httputil.ErrorFromDomain(w, domain.ErrResumeNotFound(id))
		return
	}

	education, experience := resume.BlockCounts()
	httputil.JSON(w, http.StatusOK, map[string]any{
		"resume": resume,
		"counts": map[string]int{
			"education":  education,
			"experience": experience,
		},
	})
}
