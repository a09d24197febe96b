package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	redisclient "github.com/healthops/scheduling-core/internal/redis"
	"github.com/healthops/scheduling-core/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the scheduling error taxonomy to HTTP statuses
// and machine-readable codes the dashboards key off.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "window_not_found", err.Error())
	case errors.Is(err, scheduling.ErrHolidayNotFound):
		writeError(w, http.StatusNotFound, "holiday_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "visit_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAvailability):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrConflict):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrLink):
		writeError(w, http.StatusConflict, "visit_link_error", err.Error())
	case errors.Is(err, scheduling.ErrRetryable),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusServiceUnavailable, "retry_later", "scheduling store is busy, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
