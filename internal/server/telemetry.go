package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fleet-tracking/internal/domain"
)

func (h *trackingHandler) submitPoint(w http.ResponseWriter, r *http.Request) {
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

	req := new(domain.SubmitPointRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	req.DriverID = driverID

	point, err := h.telemetry.SubmitPoint(r.Context(), req)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]string{
		"point_id":    point.ID.String(),
		"received_at": point.ReceivedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *trackingHandler) submitBatch(w http.ResponseWriter, r *http.Request) {
	claim, err := claimFrom(r)
	if err != nil {
		errorWrite(w, http.StatusInternalServerError, err)
		return
	}

	req := new(domain.SubmitBatchRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	for i := range req.Points {
		if req.Points[i].DriverID != claim.DriverID {
			errorWrite(w, http.StatusForbidden, fmt.Errorf("batch contains points of another driver"))
			return
		}
	}

	res, err := h.telemetry.SubmitBatch(r.Context(), req)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *trackingHandler) activeDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"drivers": h.telemetry.ActiveDrivers()})
}
