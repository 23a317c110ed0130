package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/service"
	"github.com/google/uuid"
)

type FactHandler struct {
	svc *service.FactService
}

func NewFactHandler(svc *service.FactService) *FactHandler {
	return &FactHandler{svc: svc}
}

type createFactRequest struct {
	FactKey    string     `json:"fact_key"`
	ScopeType  string     `json:"scope_type"`
	ScopeID    string     `json:"scope_id"`
	Statement  string     `json:"statement"`
	Category   string     `json:"category"`
	Confidence float64    `json:"confidence"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
}

func (h *FactHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req createFactRequest
	if !decode(w, r, &req, false) {
		return
	}

	f := &domain.Fact{
		TenantID:   tenant.ID,
		FactKey:    req.FactKey,
		ScopeType:  domain.ScopeType(req.ScopeType),
		ScopeID:    req.ScopeID,
		Statement:  req.Statement,
		Category:   req.Category,
		Confidence: req.Confidence,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	}
	if err := h.svc.Create(r.Context(), f); err != nil {
		writeFactError(w, err, "failed to create fact")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FactHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "fact")
	if !ok {
		return
	}
	f, err := h.svc.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		writeFactError(w, err, "failed to get fact")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type replaceFactRequest struct {
	Statement      string `json:"statement"`
	Reason         string `json:"reason"`
	CorrectionType string `json:"correction_type"`
	Actor          string `json:"actor"`
}

type replaceFactResponse struct {
	OldID uuid.UUID `json:"old_fact_id"`
	NewID uuid.UUID `json:"new_fact_id"`
}

func (h *FactHandler) Replace(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "fact")
	if !ok {
		return
	}
	var req replaceFactRequest
	if !decode(w, r, &req, false) {
		return
	}

	newID, err := h.svc.Replace(r.Context(), tenant.ID, domain.Replacement{
		OldID:          id,
		NewStatement:   req.Statement,
		Reason:         req.Reason,
		CorrectionType: domain.CorrectionType(req.CorrectionType),
		Actor:          req.Actor,
	})
	if err != nil {
		writeFactError(w, err, "failed to replace fact")
		return
	}
	writeJSON(w, http.StatusCreated, replaceFactResponse{OldID: id, NewID: newID})
}

type deleteFactRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// Delete retracts fact {id}. Reason and actor may come from the body or
// from the query string.
func (h *FactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "fact")
	if !ok {
		return
	}
	var req deleteFactRequest
	if !decode(w, r, &req, true) {
		return
	}
	if req.Reason == "" {
		req.Reason = r.URL.Query().Get("reason")
	}
	if req.Actor == "" {
		req.Actor = r.URL.Query().Get("actor")
	}

	if err := h.svc.Delete(r.Context(), tenant.ID, id, req.Reason, req.Actor); err != nil {
		writeFactError(w, err, "failed to delete fact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History lists every version of a fact key in one scope, newest first.
func (h *FactHandler) History(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	q := r.URL.Query()
	key := q.Get("fact_key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "fact_key is required")
		return
	}
	scope := domain.Scope{Type: domain.ScopeType(q.Get("scope_type")), ID: q.Get("scope_id")}
	if scope.Type == "" {
		scope = domain.GlobalScope()
	}

	facts, err := h.svc.History(r.Context(), tenant.ID, scope, key)
	if err != nil {
		writeFactError(w, err, "failed to get fact history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (h *FactHandler) Corrections(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "fact")
	if !ok {
		return
	}
	out, err := h.svc.Corrections(r.Context(), tenant.ID, id)
	if err != nil {
		writeFactError(w, err, "failed to get corrections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": out})
}

func writeFactError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrFactNotFound):
		writeError(w, http.StatusNotFound, "fact not found")
	case errors.Is(err, service.ErrFactConflict), errors.Is(err, service.ErrFactNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidFact), errors.Is(err, service.ErrInvalidCorrection),
		errors.Is(err, service.ErrCorrectionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
