package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/service"
	"github.com/google/uuid"
)

type BeliefHandler struct {
	svc     *service.BeliefService
	updates *service.UpdateQueue
}

func NewBeliefHandler(svc *service.BeliefService, updates *service.UpdateQueue) *BeliefHandler {
	return &BeliefHandler{svc: svc, updates: updates}
}

type createBeliefRequest struct {
	Key       string      `json:"key"`
	Statement string      `json:"statement"`
	ScopeType string      `json:"scope_type"`
	ScopeID   string      `json:"scope_id"`
	Category  string      `json:"category"`
	Strength  *float64    `json:"strength"`
	Immutable bool        `json:"immutable"`
	Supports  []uuid.UUID `json:"supports"`
}

func (h *BeliefHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}

	var req createBeliefRequest
	if !decode(w, r, &req, false) {
		return
	}
	if req.Strength == nil {
		writeError(w, http.StatusBadRequest, "strength is required")
		return
	}

	b := &domain.Belief{
		TenantID:  tenant.ID,
		Key:       req.Key,
		Statement: req.Statement,
		ScopeType: domain.ScopeType(req.ScopeType),
		ScopeID:   req.ScopeID,
		Category:  domain.Category(req.Category),
		Strength:  *req.Strength,
		Immutable: req.Immutable,
		Supports:  req.Supports,
	}
	if err := h.svc.Create(r.Context(), b); err != nil {
		writeBeliefError(w, err, "failed to create belief")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BeliefHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "belief")
	if !ok {
		return
	}

	b, err := h.svc.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		writeBeliefError(w, err, "failed to get belief")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type addSupportRequest struct {
	Target uuid.UUID `json:"target_id"`
}

// AddSupport makes updates to belief {id} cascade into target_id.
func (h *BeliefHandler) AddSupport(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "belief")
	if !ok {
		return
	}
	var req addSupportRequest
	if !decode(w, r, &req, false) {
		return
	}
	if req.Target == uuid.Nil {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	if err := h.svc.AddSupport(r.Context(), tenant.ID, id, req.Target); err != nil {
		writeBeliefError(w, err, "failed to add support")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type outcomeRequest struct {
	OrgID      string `json:"org_id"`
	PersonID   string `json:"person_id"`
	Signal     int    `json:"signal"`
	Difficulty string `json:"difficulty"`
}

// RecordOutcome applies an operator-graded outcome to belief {id} through
// the update queue and returns the resulting strength changes.
func (h *BeliefHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "belief")
	if !ok {
		return
	}
	var req outcomeRequest
	if !decode(w, r, &req, false) {
		return
	}
	if !domain.ValidSignal(req.Signal) {
		writeError(w, http.StatusBadRequest, service.ErrInvalidSignal.Error())
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = string(domain.DifficultyNormal)
	}
	if !domain.ValidDifficulty(req.Difficulty) {
		writeError(w, http.StatusBadRequest, "invalid difficulty")
		return
	}

	key := domain.TenantKey{TenantID: tenant.ID, OrgID: req.OrgID, PersonID: req.PersonID}
	ev := service.NewManualUpdateEvent(key, id, domain.Signal(req.Signal), domain.Difficulty(req.Difficulty))
	res, err := h.updates.Apply(r.Context(), ev)
	if err != nil {
		writeBeliefError(w, err, "failed to apply outcome")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeBeliefError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrBeliefNotFound):
		writeError(w, http.StatusNotFound, "belief not found")
	case errors.Is(err, service.ErrBeliefConflict), errors.Is(err, service.ErrSupportCycle):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidBelief), errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidSignal), errors.Is(err, service.ErrInvalidDifficulty):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidUpdateState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQueueStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
