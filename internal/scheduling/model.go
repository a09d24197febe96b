package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

type Provider struct {
	ID             uuid.UUID
	Name           string
	Specialization *string
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityWindow is one recurring weekly block of bookable time.
// DayOfWeek is ISO style, 1 = Monday ... 7 = Sunday.
type AvailabilityWindow struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	DayOfWeek  int
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	CreatedAt  time.Time
}

// HolidayException voids all recurring availability of a provider
// on a single date.
type HolidayException struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Date       time.Time // midnight UTC
	Reason     string
	CreatedAt  time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          AppointmentStatus
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Interval returns the half-open [ScheduledAt, ScheduledAt+duration)
// interval the appointment occupies.
func (a Appointment) Interval() Interval {
	return Interval{
		Start: a.ScheduledAt,
		End:   a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute),
	}
}

type Visit struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	ProviderID    uuid.UUID
	AppointmentID *uuid.UUID
	VisitAt       time.Time
	Notes         string
	Diagnosis     string
	Prescription  string
	CreatedAt     time.Time
}

type SchedulingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentFilter struct {
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	From       *time.Time
	To         *time.Time
	Status     *AppointmentStatus
	Limit      int
	Offset     int
}

type VisitFilter struct {
	ProviderID *uuid.UUID
	PatientID  *uuid.UUID
	Limit      int
	Offset     int
}
