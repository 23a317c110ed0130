package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/service"
	"github.com/google/uuid"
)

const maxBatchSize = 100

type TaskHandler struct {
	svc *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

type taskRequest struct {
	OrgID         string         `json:"org_id"`
	PersonID      string         `json:"person_id"`
	CapabilityKey string         `json:"capability_key"`
	UserID        string         `json:"user_id"`
	Args          map[string]any `json:"args"`
	Difficulty    string         `json:"difficulty"`
	BeliefIDs     []uuid.UUID    `json:"belief_ids"`
}

func (req taskRequest) unit(tenantID uuid.UUID) (domain.WorkUnit, error) {
	if req.Difficulty != "" && !domain.ValidDifficulty(req.Difficulty) {
		return domain.WorkUnit{}, errors.New("invalid difficulty")
	}
	return domain.WorkUnit{
		Tenant:        domain.TenantKey{TenantID: tenantID, OrgID: req.OrgID, PersonID: req.PersonID},
		CapabilityKey: req.CapabilityKey,
		UserID:        req.UserID,
		Args:          req.Args,
		Difficulty:    domain.Difficulty(req.Difficulty),
		BeliefIDs:     req.BeliefIDs,
	}, nil
}

// Run executes one work unit to a terminal state. Any terminal state,
// escalation included, is a 200: the outcome is the answer.
func (h *TaskHandler) Run(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req taskRequest
	if !decode(w, r, &req, false) {
		return
	}
	unit, err := req.unit(tenant.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Run(r.Context(), unit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTask) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to run task")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Parallel int           `json:"parallel"`
	Tasks    []taskRequest `json:"tasks"`
}

func (h *TaskHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	var req batchRequest
	if !decode(w, r, &req, false) {
		return
	}
	if len(req.Tasks) == 0 || len(req.Tasks) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "tasks must hold between 1 and 100 entries")
		return
	}

	units := make([]domain.WorkUnit, len(req.Tasks))
	for i, t := range req.Tasks {
		u, err := t.unit(tenant.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		units[i] = u
	}

	results := h.svc.RunBatch(r.Context(), units, req.Parallel)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
