package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Probe checks one backing service.
type Probe func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	probes  map[string]Probe
	signer  string
	version int
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. probes are keyed by service name;
// signer is the active signer address ("" when none is loaded).
func NewHealthHandler(probes map[string]Probe, signer string, wireVersion int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{probes: probes, signer: signer, version: wireVersion, logger: logger}
}

// HealthCheck reports liveness plus the state of every configured backend.
// Any failing backend turns the response into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	services := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.probes[name](ctx); err != nil {
			logHandler(h.logger, "health").WarnContext(ctx, "backend unhealthy",
				slog.String("service", name),
				slog.String("error", err.Error()),
			)
			services[name] = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"services":     services,
		"signer":       h.signer,
		"wire_version": h.version,
	})
}
