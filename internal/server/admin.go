package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fleet-tracking/internal/domain"
)

func (h *trackingHandler) sessionAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.sessions.Audit(r.Context(), r.URL.Query().Get("driver_id"), limit)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]any{"sessions": sessions})
}

func (h *trackingHandler) gpsQuality(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errorWrite(w, http.StatusBadRequest, err)
			return
		}
		since = parsed
	}
	report, err := h.telemetry.Quality(r.Context(), since)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]any{"devices": report})
}

func (h *trackingHandler) flaggedEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.events.Flagged(r.Context(), limit)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}

func (h *trackingHandler) reviewEvent(w http.ResponseWriter, r *http.Request) {
	req := new(domain.ReviewEventRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	if err := h.events.Review(r.Context(), r.PathValue("event_id"), req); err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": req.Status})
}
