package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleet-tracking/internal/domain"
)

type myErr struct {
	ErrStr string `json:"error"`
}

func errorWrite(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := &myErr{
		ErrStr: err.Error(),
	}
	json.NewEncoder(w).Encode(msg)
}

// errorWriteFor maps the error taxonomy to HTTP status codes. Only
// validation and state conflicts are client faults.
func errorWriteFor(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		errorWrite(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrStateConflict):
		errorWrite(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrNotFound):
		errorWrite(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrTransient):
		errorWrite(w, http.StatusServiceUnavailable, err)
	default:
		errorWrite(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
