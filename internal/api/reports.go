package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

// CSV report endpoints. Read-only projections of the ledger for the
// dashboards' export buttons; they never mutate scheduling state.

func appointmentsReportHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, ok := appointmentFilterFromQuery(w, r)
		if !ok {
			return
		}
		filter.Limit = 200

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename=appointments-report.csv`)

		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"Appointment ID", "Patient ID", "Provider ID", "Scheduled At", "Duration Minutes", "Status", "Reason"})

		for offset := 0; ; offset += filter.Limit {
			filter.Offset = offset
			appts, err := svc.ListAppointments(r.Context(), filter)
			if err != nil {
				// Headers are already out; stop the stream.
				return
			}
			for _, a := range appts {
				_ = cw.Write([]string{
					a.ID.String(),
					a.PatientID.String(),
					a.ProviderID.String(),
					a.ScheduledAt.Format(time.RFC3339),
					strconv.Itoa(a.DurationMinutes),
					string(a.Status),
					a.Reason,
				})
			}
			if len(appts) < filter.Limit {
				break
			}
		}
		cw.Flush()
	}
}

func visitsReportHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter scheduling.VisitFilter
		filter.Limit = 200

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename=visits-report.csv`)

		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"Visit Date", "Patient ID", "Provider ID", "Appointment ID", "Diagnosis", "Prescription", "Notes"})

		for offset := 0; ; offset += filter.Limit {
			filter.Offset = offset
			visits, err := svc.ListVisits(r.Context(), filter)
			if err != nil {
				return
			}
			for _, v := range visits {
				apptID := ""
				if v.AppointmentID != nil {
					apptID = v.AppointmentID.String()
				}
				_ = cw.Write([]string{
					v.VisitAt.Format(time.RFC3339),
					v.PatientID.String(),
					v.ProviderID.String(),
					apptID,
					v.Diagnosis,
					v.Prescription,
					v.Notes,
				})
			}
			if len(visits) < filter.Limit {
				break
			}
		}
		cw.Flush()
	}
}
