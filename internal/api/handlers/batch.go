package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/workflows"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

const batchWorkflowType = "BatchScanWorkflow"

// WorkflowClient is the part of the Temporal client the batch handler uses
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// BatchHandler starts and tracks batch scans
type BatchHandler struct {
	client    WorkflowClient
	taskQueue string
	maxURLs   int
	metrics   WorkflowRecorder
	logger    *zap.Logger
}

// NewBatchHandler creates a new batch handler. c may be nil when Temporal
// is disabled.
func NewBatchHandler(c WorkflowClient, taskQueue string, maxURLs int, metrics WorkflowRecorder, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &BatchHandler{
		client:    c,
		taskQueue: taskQueue,
		maxURLs:   maxURLs,
		metrics:   metrics,
		logger:    logger,
	}
}

// BatchRequest is the request body for a batch scan
type BatchRequest struct {
	URLs     []string `json:"urls"`
	ResumeID string   `json:"resume_id,omitempty"`
}

// BatchResponse identifies a started batch
type BatchResponse struct {
	BatchID    string `json:"batch_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	URLs       int    `json:"urls"`
}

// Start handles POST /api/v1/scans/batch
func (h *BatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("temporal"))
		return
	}

	var req BatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if len(req.URLs) == 0 {
		httputil.ErrorFromDomain(w, domain.ValidationError("urls", "at least one url is required"))
		return
	}
	if h.maxURLs > 0 && len(req.URLs) > h.maxURLs {
		httputil.ErrorFromDomain(w, domain.ValidationError("urls", "too many urls in one batch"))
		return
	}
	for _, u := range req.URLs {
		if err := validatePageURL(u); err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
	}

	batchID := uuid.New().String()
	workflowID := "batch-" + batchID
	run, err := h.client.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}, workflows.BatchScanWorkflow, workflows.BatchScanInput{
		BatchID:  batchID,
		URLs:     req.URLs,
		ResumeID: req.ResumeID,
	})
	if err != nil {
		h.logger.Error("Failed to start batch workflow", zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrExternalAPI("temporal", err))
		return
	}
	h.metrics.RecordWorkflowStart(batchWorkflowType)

	h.logger.Info("Batch scan started",
		zap.String("workflow_id", run.GetID()),
		zap.Int("urls", len(req.URLs)),
	)

	httputil.JSON(w, http.StatusAccepted, BatchResponse{
		BatchID:    batchID,
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
		URLs:       len(req.URLs),
	})
}

// Progress handles GET /api/v1/scans/batch/{id}
func (h *BatchHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("temporal"))
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID format", nil)
		return
	}

	value, err := h.client.QueryWorkflow(r.Context(), "batch-"+id, "", workflows.ProgressQuery)
	if err != nil {
		h.logger.Warn("Failed to query batch progress", zap.String("batch_id", id), zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrExternalAPI("temporal", err))
		return
	}

	var progress workflows.BatchProgress
	if err := value.Get(&progress); err != nil {
		httputil.ErrorFromDomain(w, domain.ErrInternal("failed to decode batch progress").WithCause(err))
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"batch_id": id,
		"progress": progress,
	})
}
