package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/tenet/internal/service"
)

const (
	defaultRecallTopK = 10
	maxRecallTopK     = 100
)

// MemoryHandler serves similarity search over recorded outcomes.
type MemoryHandler struct {
	recorder *service.FeedbackRecorder
}

func NewMemoryHandler(recorder *service.FeedbackRecorder) *MemoryHandler {
	return &MemoryHandler{recorder: recorder}
}

func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := defaultRecallTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = min(n, maxRecallTopK)
	}

	records, err := h.recorder.Recall(r.Context(), tenant.ID, query, topK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to recall memory records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
