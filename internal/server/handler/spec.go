package handler

import (
	"log/slog"
	"net/http"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/resolver"
	"github.com/gitadpal/voran/internal/template"
	"github.com/gitadpal/voran/internal/validate"
)

// SpecHandler serves spec validation and template expansion/verification.
type SpecHandler struct {
	validator *validate.Validator
	resolver  *resolver.Resolver
	logger    *slog.Logger
}

// NewSpecHandler creates a SpecHandler.
func NewSpecHandler(v *validate.Validator, res *resolver.Resolver, logger *slog.Logger) *SpecHandler {
	return &SpecHandler{validator: v, resolver: res, logger: logger}
}

// Validate checks a spec document. Problems are reported in the body with a
// 200 status.
// POST /api/specs/validate
func (h *SpecHandler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, _ := h.validator.ValidateDocument(body)
	writeJSON(w, http.StatusOK, rep)
}

type expandResponse struct {
	Count   int                     `json:"count"`
	Specs   []domain.ResolutionSpec `json:"specs"`
	Reports []validate.Report       `json:"reports"`
}

// Expand expands a template document and validates every variant.
// POST /api/templates/expand
func (h *SpecHandler) Expand(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.decodeTemplate(w, r)
	if !ok {
		return
	}

	specs, err := template.Expand(*tmpl)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := expandResponse{Count: len(specs), Specs: specs, Reports: make([]validate.Report, len(specs))}
	for i, s := range specs {
		resp.Reports[i] = h.validator.Validate(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Verify expands a template, validates every variant and dry-runs them per
// the ?policy= query parameter (first or all; default from config).
// POST /api/templates/verify
func (h *SpecHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.decodeTemplate(w, r)
	if !ok {
		return
	}

	var (
		rep resolver.BatchReport
		err error
	)
	if p := r.URL.Query().Get("policy"); p != "" {
		policy, perr := resolver.ParseBatchPolicy(p)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		rep, err = h.resolver.VerifyBatchWithPolicy(r.Context(), *tmpl, policy)
	} else {
		rep, err = h.resolver.VerifyBatch(r.Context(), *tmpl)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *SpecHandler) decodeTemplate(w http.ResponseWriter, r *http.Request) (*domain.TemplateSpec, bool) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rep, tmpl := h.validator.ValidateTemplateDocument(body)
	if !rep.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, rep)
		return nil, false
	}
	return tmpl, true
}
