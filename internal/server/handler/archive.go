package handler

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gitadpal/voran/internal/domain"
)

// RawIndex lists archived source responses.
type RawIndex interface {
	List(ctx context.Context, hashPrefix string) ([]domain.ArchivedRaw, error)
}

var hashPrefixPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{0,64}$`)

// ArchiveHandler exposes the raw response archive.
type ArchiveHandler struct {
	index  RawIndex
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. index may be nil when no
// archive is configured.
func NewArchiveHandler(index RawIndex, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{index: index, logger: logHandler(logger, "archive")}
}

// List returns archived responses whose raw hash starts with ?prefix=.
// GET /api/raw
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, "raw archive not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if !hashPrefixPattern.MatchString(prefix) {
		writeError(w, http.StatusBadRequest, "prefix must be a hex raw hash prefix")
		return
	}
	opts := parseListOpts(r)

	items, err := h.index.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list raw archive", slog.String("prefix", prefix), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list raw archive")
		return
	}

	total := len(items)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"items": items[start:end],
	})
}
