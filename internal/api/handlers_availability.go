package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

func listProvidersHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for _, p := range providers {
			resp = append(resp, ProviderResponse{
				ID:             p.ID,
				Name:           p.Name,
				Specialization: p.Specialization,
				Enabled:        p.Enabled,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listWindowsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		windows, err := svc.ListWindows(r.Context(), providerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]WindowResponse, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, toWindowResponse(win))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		var req CreateWindowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := scheduling.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		window, err := svc.CreateWindow(r.Context(), providerID, req.DayOfWeek, start, end)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWindowResponse(*window))
	}
}

func updateWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		windowID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window_id", "id must be a valid UUID")
			return
		}

		var req CreateWindowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, err := scheduling.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		end, err := scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		window, err := svc.UpdateWindow(r.Context(), windowID, req.DayOfWeek, start, end)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWindowResponse(*window))
	}
}

func deleteWindowHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		windowID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteWindow(r.Context(), windowID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listHolidaysHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		holidays, err := svc.ListHolidays(r.Context(), providerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]HolidayResponse, 0, len(holidays))
		for _, h := range holidays {
			resp = append(resp, toHolidayResponse(h))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createHolidayHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		var req CreateHolidayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		holiday, err := svc.CreateHoliday(r.Context(), providerID, date, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toHolidayResponse(*holiday))
	}
}

func updateHolidayHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holidayID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_holiday_id", "id must be a valid UUID")
			return
		}

		var req CreateHolidayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		holiday, err := svc.UpdateHoliday(r.Context(), holidayID, date, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toHolidayResponse(*holiday))
	}
}

func deleteHolidayHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holidayID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_holiday_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteHoliday(r.Context(), holidayID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// scheduleHandler exposes the resolver: the free intervals a dashboard
// can offer for booking on one provider/date.
func scheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query param must be YYYY-MM-DD")
			return
		}

		free, err := svc.Resolve(r.Context(), providerID, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if free == nil {
			free = []scheduling.Interval{}
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{
			ProviderID: providerID,
			Date:       dateStr,
			Free:       free,
		})
	}
}
