package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Harshitk-cp/tenet/internal/api/middleware"
	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/store"
)

const maxTenantNameLen = 128

type TenantHandler struct {
	store domain.TenantStore
}

func NewTenantHandler(store domain.TenantStore) *TenantHandler {
	return &TenantHandler{store: store}
}

type createTenantRequest struct {
	Name string `json:"name"`
}

// createTenantResponse is the only place the plain API key ever appears.
type createTenantResponse struct {
	*domain.Tenant
	APIKey string `json:"api_key"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !decode(w, r, &req, false) {
		return
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case utf8.RuneCountInString(name) > maxTenantNameLen:
		writeError(w, http.StatusBadRequest, "name is too long")
		return
	}

	key, hash, err := middleware.NewAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue API key")
		return
	}
	tenant := &domain.Tenant{Name: name, APIKeyHash: hash}
	if err := h.store.Create(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "tenant already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}
	writeJSON(w, http.StatusCreated, createTenantResponse{Tenant: tenant, APIKey: key})
}
