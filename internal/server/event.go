package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"fleet-tracking/internal/domain"
)

func (h *trackingHandler) submitEvent(w http.ResponseWriter, r *http.Request) {
	claim, err := claimFrom(r)
	if err != nil {
		errorWrite(w, http.StatusInternalServerError, err)
		return
	}
	driverID := r.PathValue("driver_id")
	if claim.DriverID != driverID {
		errorWrite(w, http.StatusForbidden, fmt.Errorf("driver id != token's id"))
		return
	}

	req := new(domain.SubmitEventRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	req.DriverID = driverID

	res, err := h.events.Submit(r.Context(), req)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *trackingHandler) timeline(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.events.Timeline(r.Context(), r.PathValue("driver_id"), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}
