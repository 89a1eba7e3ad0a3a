package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/storage"
	"github.com/cvtailor/cvtailor/pkg/httputil"
)

// SnapshotReader reads back archived page markup
type SnapshotReader interface {
	List(ctx context.Context, host string) ([]string, error)
	Load(ctx context.Context, key string) (string, error)
	LoadResult(ctx context.Context, key string) (*domain.ScanResult, error)
	PresignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SnapshotHandler exposes the archive of pages that yielded no form, so
// heuristic misses can be replayed against the scanner
type SnapshotHandler struct {
	store  SnapshotReader
	logger *zap.Logger
}

// NewSnapshotHandler creates a snapshot handler. store may be nil when MinIO
// is disabled.
func NewSnapshotHandler(store SnapshotReader, logger *zap.Logger) *SnapshotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotHandler{store: store, logger: logger}
}

// SnapshotResponse describes one archived page
type SnapshotResponse struct {
	Key    string             `json:"key"`
	URL    string             `json:"url"`
	Result *domain.ScanResult `json:"result,omitempty"`
}

// List handles GET /api/v1/snapshots?host=
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("snapshot archive"))
		return
	}

	host := r.URL.Query().Get("host")
	if host == "" {
		httputil.ErrorFromDomain(w, domain.ValidationError("host", "host is required"))
		return
	}

	keys, err := h.store.List(r.Context(), host)
	if err != nil {
		h.logger.Error("Failed to list snapshots", zap.String("host", host), zap.Error(err))
		httputil.ErrorFromDomain(w, domain.ErrExternalAPI("minio", err))
		return
	}
	if keys == nil {
		keys = []string{}
	}

	httputil.JSONWithMeta(w, http.StatusOK, keys, &httputil.Meta{Total: len(keys)})
}

// Get handles GET /api/v1/snapshots/{key}. With ?format=html the archived
// markup itself is returned.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if r.URL.Query().Get("format") == "html" {
		markup, err := h.store.Load(ctx, key)
		if err != nil {
			h.storeError(w, key, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(markup))
		return
	}

	result, err := h.store.LoadResult(ctx, key)
	if err != nil {
		h.storeError(w, key, err)
		return
	}
	u, err := h.store.PresignedURL(ctx, key)
	if err != nil {
		h.storeError(w, key, err)
		return
	}

	httputil.JSON(w, http.StatusOK, SnapshotResponse{Key: key, URL: u, Result: result})
}

// Delete handles DELETE /api/v1/snapshots/{key}
func (h *SnapshotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := h.key(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		h.storeError(w, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SnapshotHandler) key(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.store == nil {
		httputil.ErrorFromDomain(w, domain.ErrServiceUnavailable("snapshot archive"))
		return "", false
	}
	key := "snapshots/" + chi.URLParam(r, "*")
	if !storage.ValidSnapshotKey(key) {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_KEY", "Invalid snapshot key", nil)
		return "", false
	}
	return key, true
}

func (h *SnapshotHandler) storeError(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		httputil.ErrorFromDomain(w, domain.ErrNotFound("snapshot", key))
		return
	}
	h.logger.Error("Snapshot archive failed", zap.String("key", key), zap.Error(err))
	httputil.ErrorFromDomain(w, domain.ErrExternalAPI("minio", err))
}
