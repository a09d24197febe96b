package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthops/scheduling-core/internal/scheduling"
)

type CreateWindowRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type WindowResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	DayOfWeek  int       `json:"day_of_week"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
}

func toWindowResponse(w scheduling.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:         w.ID,
		ProviderID: w.ProviderID,
		DayOfWeek:  w.DayOfWeek,
		StartTime:  w.StartTime.String(),
		EndTime:    w.EndTime.String(),
	}
}

type CreateHolidayRequest struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Reason string `json:"reason"`
}

type HolidayResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Date       string    `json:"date"`
	Reason     string    `json:"reason"`
}

func toHolidayResponse(h scheduling.HolidayException) HolidayResponse {
	return HolidayResponse{
		ID:         h.ID,
		ProviderID: h.ProviderID,
		Date:       h.Date.Format("2006-01-02"),
		Reason:     h.Reason,
	}
}

type ProviderResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization *string   `json:"specialization,omitempty"`
	Enabled        bool      `json:"enabled"`
}

type ScheduleResponse struct {
	ProviderID uuid.UUID             `json:"provider_id"`
	Date       string                `json:"date"`
	Free       []scheduling.Interval `json:"free"`
}

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	ProviderID      string    `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Reason          string    `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ProviderID:      a.ProviderID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
	}
}

type CreateVisitRequest struct {
	PatientID     string  `json:"patient_id"`
	ProviderID    string  `json:"provider_id"`
	AppointmentID *string `json:"appointment_id,omitempty"`
	Diagnosis     string  `json:"diagnosis"`
	Prescription  string  `json:"prescription"`
	Notes         string  `json:"notes"`
}

type VisitResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	VisitAt       time.Time  `json:"visit_at"`
	Notes         string     `json:"notes,omitempty"`
	Diagnosis     string     `json:"diagnosis,omitempty"`
	Prescription  string     `json:"prescription,omitempty"`
}

func toVisitResponse(v scheduling.Visit) VisitResponse {
	return VisitResponse{
		ID:            v.ID,
		PatientID:     v.PatientID,
		ProviderID:    v.ProviderID,
		AppointmentID: v.AppointmentID,
		VisitAt:       v.VisitAt,
		Notes:         v.Notes,
		Diagnosis:     v.Diagnosis,
		Prescription:  v.Prescription,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
