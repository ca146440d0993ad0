package handler

import (
	"net/http"

	"github.com/gitadpal/voran/internal/registry"
)

// RegistryHandler exposes the data-source catalog.
type RegistryHandler struct {
	reg *registry.Registry
}

// NewRegistryHandler creates a RegistryHandler.
func NewRegistryHandler(reg *registry.Registry) *RegistryHandler {
	return &RegistryHandler{reg: reg}
}

// List returns every catalog source and the secret names they reference.
// GET /api/registry
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": h.reg.Sources(),
		"secrets": h.reg.Secrets(),
	})
}
