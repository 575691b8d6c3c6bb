package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fleet-tracking/internal/domain"
)

func (h *trackingHandler) startSession(w http.ResponseWriter, r *http.Request) {
	claim, err := claimFrom(r)
	if err != nil {
		errorWrite(w, http.StatusInternalServerError, err)
		return
	}
	req := new(domain.StartSessionRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	if claim.DriverID != req.DriverID {
		errorWrite(w, http.StatusForbidden, fmt.Errorf("driver id != token's id"))
		return
	}

	session, err := h.sessions.Start(r.Context(), req)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, &domain.StartSessionResponse{
		SessionID: session.ID.String(),
		Status:    string(session.Status),
		Message:   "Session started, previous sessions are superseded",
	})
}

func (h *trackingHandler) heartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	active, err := h.sessions.Heartbeat(r.Context(), id)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, &domain.HeartbeatResponse{
		SessionID: id,
		Active:    active,
	})
}

func (h *trackingHandler) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	req := new(domain.EndSessionRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}

	ended, err := h.sessions.End(r.Context(), id, req.Reason)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	msg := "Session ended"
	if !ended {
		msg = "Session was already terminated"
	}
	writeJSON(w, &domain.EndSessionResponse{
		SessionID: id,
		Ended:     ended,
		Message:   msg,
	})
}
