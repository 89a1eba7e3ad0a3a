package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/llm"
)

// TailorHandler serves the CV tailoring proxy used by the extension popup
type TailorHandler struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewTailorHandler creates a new tailor handler. provider may be nil when
// no LLM is configured.
func NewTailorHandler(provider llm.Provider, logger *zap.Logger) *TailorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TailorHandler{provider: provider, logger: logger}
}

// TailorErrorMessage is the only error text the extension is shown
const TailorErrorMessage = "Failed to tailor CV"

// TailorRequest is the request body of POST /api/tailor
type TailorRequest struct {
	JobDescription string `json:"jobDescription"`
	UserCV         string `json:"userCV"`
}

// TailorResponse is the success body of POST /api/tailor
type TailorResponse struct {
	TailoredCV string `json:"tailoredCV"`
}

// Tailor handles POST /api/tailor. The extension reads the bare
// {tailoredCV} and {error} bodies, so this route skips the API envelope.
func (h *TailorHandler) Tailor(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeTailorError(w, http.StatusServiceUnavailable)
		return
	}

	var req TailorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTailorError(w, http.StatusBadRequest)
		return
	}

	text, err := llm.Tailor(r.Context(), h.provider, req.JobDescription, req.UserCV)
	if err != nil {
		status := domain.GetHTTPStatus(err)
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		h.logger.Error("Tailoring failed",
			zap.String("provider", h.provider.Name()),
			zap.Error(err),
		)
		writeTailorError(w, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TailorResponse{TailoredCV: text})
}

func writeTailorError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": TailorErrorMessage})
}
