package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/tenet/internal/service"
)

type EscalationHandler struct {
	inbox *service.EscalationQueue
}

func NewEscalationHandler(inbox *service.EscalationQueue) *EscalationHandler {
	return &EscalationHandler{inbox: inbox}
}

func (h *EscalationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": h.inbox.List(tenant.ID)})
}

func (h *EscalationHandler) Ack(w http.ResponseWriter, r *http.Request) {
	tenant := requireTenant(w, r)
	if tenant == nil {
		return
	}
	id, ok := pathID(w, r, "escalation")
	if !ok {
		return
	}
	if err := h.inbox.Ack(tenant.ID, id); err != nil {
		if errors.Is(err, service.ErrEscalationNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to acknowledge escalation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
