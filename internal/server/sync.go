package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fleet-tracking/internal/domain"
)

func (h *trackingHandler) enqueueBatch(w http.ResponseWriter, r *http.Request) {
	claim, err := claimFrom(r)
	if err != nil {
		errorWrite(w, http.StatusInternalServerError, err)
		return
	}

	req := new(domain.EnqueueBatchRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		errorWrite(w, http.StatusBadRequest, err)
		return
	}
	if claim.DriverID != req.DriverID || claim.DeviceID != req.DeviceID {
		errorWrite(w, http.StatusForbidden, fmt.Errorf("batch identity != token's identity"))
		return
	}

	id, err := h.sync.Enqueue(r.Context(), req)
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, &domain.EnqueueBatchResponse{QueueItemID: id.String()})
}

func (h *trackingHandler) processQueue(w http.ResponseWriter, r *http.Request) {
	processed, err := h.queue.ProcessPending(r.Context())
	if err != nil {
		errorWriteFor(w, err)
		return
	}
	writeJSON(w, map[string]int{"processed": processed})
}
