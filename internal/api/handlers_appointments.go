package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		if req.ScheduledAt.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at is required")
			return
		}

		appt, err := svc.Book(r.Context(), providerID, patientID, req.ScheduledAt, req.DurationMinutes, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := appointmentFilterFromQuery(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ScheduledAt.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at is required")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.ScheduledAt, req.DurationMinutes, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentStatusHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), id, scheduling.AppointmentStatus(req.Status))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func appointmentFilterFromQuery(w http.ResponseWriter, r *http.Request) (scheduling.AppointmentFilter, bool) {
	var filter scheduling.AppointmentFilter
	q := r.URL.Query()

	if v := q.Get("provider_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return filter, false
		}
		filter.ProviderID = &id
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return filter, false
		}
		filter.PatientID = &id
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDateOrTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339 or YYYY-MM-DD")
			return filter, false
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDateOrTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339 or YYYY-MM-DD")
			return filter, false
		}
		filter.To = &t
	}
	if v := q.Get("status"); v != "" {
		status := scheduling.AppointmentStatus(v)
		if !scheduling.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be SCHEDULED, COMPLETED or CANCELLED")
			return filter, false
		}
		filter.Status = &status
	}

	return filter, true
}

func parseDateOrTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
