package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

func createVisitHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateVisitRequest
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

		var appointmentID *uuid.UUID
		if req.AppointmentID != nil && *req.AppointmentID != "" {
			id, err := uuid.Parse(*req.AppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
				return
			}
			appointmentID = &id
		}

		visit, err := svc.RecordVisit(r.Context(), providerID, patientID, appointmentID, req.Diagnosis, req.Prescription, req.Notes)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toVisitResponse(*visit))
	}
}

func getVisitHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		visit, err := svc.GetVisit(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(*visit))
	}
}

func listVisitsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter scheduling.VisitFilter
		q := r.URL.Query()

		if v := q.Get("provider_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			filter.ProviderID = &id
		}
		if v := q.Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = &id
		}

		visits, err := svc.ListVisits(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]VisitResponse, 0, len(visits))
		for _, v := range visits {
			resp = append(resp, toVisitResponse(v))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
