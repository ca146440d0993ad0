package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/resolver"
	"github.com/gitadpal/voran/internal/validate"
)

// ResolutionHandler runs resolutions and dry runs, verifies payloads and
// lists stored resolutions.
type ResolutionHandler struct {
	validator *validate.Validator
	resolver  *resolver.Resolver
	verifier  *resolver.Verifier
	store     domain.ResolutionStore
	logger    *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler. store may be nil, in
// which case the list endpoints answer 503.
func NewResolutionHandler(
	v *validate.Validator,
	res *resolver.Resolver,
	verifier *resolver.Verifier,
	store domain.ResolutionStore,
	logger *slog.Logger,
) *ResolutionHandler {
	return &ResolutionHandler{validator: v, resolver: res, verifier: verifier, store: store, logger: logger}
}

// Resolve validates a spec document, runs it and returns the signed
// resolution.
// POST /api/resolve
func (h *ResolutionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, spec := h.validator.ValidateDocument(body)
	if !rep.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, rep)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), *spec)
	if err != nil {
		logHandler(h.logger, "resolve").WarnContext(r.Context(), "resolution failed",
			slog.String("market_id", spec.MarketID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, resolveStatus(err), map[string]string{
			"error": err.Error(),
			"stage": string(resolver.StageOf(err)),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// resolveStatus maps a resolution error to an HTTP status.
func resolveStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingSecret):
		return http.StatusServiceUnavailable
	case resolver.StageOf(err) == domain.StageFetch:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// DryRun runs a spec document without signing side effects. The response is
// always 200 with a DryRunResult unless the body cannot be read.
// POST /api/dry-run
func (h *ResolutionHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, spec := h.validator.ValidateDocument(body)
	if !rep.Valid {
		res := resolver.DryRunResult{
			Success: false,
			Stage:   domain.StageValidate,
			Error:   strings.Join(rep.Errors, "; "),
		}
		if spec != nil {
			res.MarketID = spec.MarketID
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusOK, h.resolver.DryRun(r.Context(), *spec))
}

// VerifyPayload checks a signed payload's signature and optional bindings.
// POST /api/payloads/verify
func (h *ResolutionHandler) VerifyPayload(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req resolver.VerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Payload.Signature == "" {
		writeError(w, http.StatusBadRequest, "payload.signature is required")
		return
	}
	writeJSON(w, http.StatusOK, h.verifier.Verify(r.Context(), req))
}

// ListRecent returns the most recent resolutions.
// GET /api/resolutions?limit=&offset=
func (h *ResolutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution store not configured")
		return
	}
	list, err := h.store.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		logHandler(h.logger, "list_resolutions").ErrorContext(r.Context(), "list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list resolutions")
		return
	}
	if list == nil {
		list = []domain.Resolution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolutions": list, "count": len(list)})
}

// ListByMarket returns the resolutions of one market.
// GET /api/resolutions/{marketId}
func (h *ResolutionHandler) ListByMarket(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution store not configured")
		return
	}
	marketID := r.PathValue("marketId")
	list, err := h.store.ListByMarket(r.Context(), marketID, parseListOpts(r))
	if err != nil {
		logHandler(h.logger, "list_market_resolutions").ErrorContext(r.Context(), "list failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list resolutions")
		return
	}
	if list == nil {
		list = []domain.Resolution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": marketID, "resolutions": list, "count": len(list)})
}
