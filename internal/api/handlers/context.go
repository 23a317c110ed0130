package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/service"
)

// ContextHandler serves scope resolution and autonomy decisions.
type ContextHandler struct {
	resolver *service.ScopeResolver
	autonomy *service.AutonomyService
}

func NewContextHandler(resolver *service.ScopeResolver, autonomy *service.AutonomyService) *ContextHandler {
	return &ContextHandler{resolver: resolver, autonomy: autonomy}
}

type resolveRequest struct {
	Context domain.RequestContext `json:"context"`
	Key     string                `json:"key"`
}

func (h *ContextHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req, false) {
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	v, err := h.resolver.Resolve(r.Context(), tenant.ID, req.Key, req.Context)
	if err != nil {
		writeContextError(w, err, "failed to resolve key")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type mountRequest struct {
	Context      domain.RequestContext `json:"context"`
	Requirements domain.Requirements   `json:"requirements"`
}

type mountResponse struct {
	Context *domain.ResolvedContext `json:"context"`
	Report  *domain.MountReport     `json:"report"`
}

// Mount returns the resolved context. A failed mount answers 422 with the
// report so the caller can see which keys were missing.
func (h *ContextHandler) Mount(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req mountRequest
	if !decode(w, r, &req, false) {
		return
	}

	resolved, report, err := h.resolver.Mount(r.Context(), tenant.ID, req.Context, req.Requirements)
	if errors.Is(err, service.ErrMountFailed) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	if err != nil {
		writeContextError(w, err, "failed to mount context")
		return
	}
	writeJSON(w, http.StatusOK, mountResponse{Context: resolved, Report: report})
}

type factsRequest struct {
	Context  domain.RequestContext `json:"context"`
	MaxFacts int                   `json:"max_facts"`
}

func (h *ContextHandler) Facts(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req factsRequest
	if !decode(w, r, &req, false) {
		return
	}
	facts, err := h.resolver.FactsForContext(r.Context(), tenant.ID, req.Context, req.MaxFacts)
	if err != nil {
		writeContextError(w, err, "failed to list facts")
		return
	}
	if facts == nil {
		facts = []domain.Fact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (h *ContextHandler) Classify(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	d, err := h.autonomy.Classify(r.Context(), tenant.ID, req.Key, req.Context)
	if err != nil {
		writeContextError(w, err, "failed to classify belief")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ContextHandler) Decide(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req service.DecisionRequest
	if !decode(w, r, &req, false) {
		return
	}

	d, err := h.autonomy.Decide(r.Context(), tenant.ID, req)
	if err != nil {
		writeContextError(w, err, "failed to decide")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeContextError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrScopeConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrMountFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrEmptyContext), errors.Is(err, service.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
