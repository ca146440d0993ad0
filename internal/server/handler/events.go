package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gitadpal/voran/internal/domain"
)

// EventsHandler pages through the durable resolution event log.
type EventsHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading stream. bus may be nil,
// in which case every request answers 503.
func NewEventsHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		bus:    bus,
		stream: stream,
		logger: logHandler(logger, "events"),
	}
}

type loggedEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List returns up to limit events recorded after the given stream ID.
// Passing the returned next cursor as after continues where the page ended.
// GET /api/events?after=<id>&limit=<n>
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not configured")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	opts := parseListOpts(r)

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event log", slog.String("after", after), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read event log")
		return
	}

	events := make([]loggedEvent, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if !json.Valid(m.Payload) {
			h.logger.WarnContext(r.Context(), "skipping malformed event", slog.String("id", m.ID))
			continue
		}
		events = append(events, loggedEvent{ID: m.ID, Event: m.Payload})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"next":   next,
	})
}
