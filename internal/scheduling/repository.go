package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the service.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error)
	UpdateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error)
	GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id uuid.UUID) error
	ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error)

	CreateHoliday(ctx context.Context, h HolidayException) (*HolidayException, error)
	UpdateHoliday(ctx context.Context, h HolidayException) (*HolidayException, error)
	GetHolidayByID(ctx context.Context, id uuid.UUID) (*HolidayException, error)
	GetHolidayByDate(ctx context.Context, providerID uuid.UUID, date time.Time) (*HolidayException, error)
	DeleteHoliday(ctx context.Context, id uuid.UUID) error
	ListHolidays(ctx context.Context, providerID uuid.UUID) ([]HolidayException, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, reason string) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set: the row is updated
	// only if its status still equals from. A miss surfaces as
	// ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	// ListActiveAppointmentsInRange returns non-cancelled appointments
	// whose interval overlaps [from, to).
	ListActiveAppointmentsInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	CreateVisit(ctx context.Context, v Visit) (*Visit, error)
	GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetVisitByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error)
	ListVisits(ctx context.Context, f VisitFilter) ([]Visit, error)

	InsertEvent(ctx context.Context, ev SchedulingEvent) error

	// WithProviderTx runs fn against a transaction-scoped repository
	// after taking an exclusive lock on the provider row. All writes to
	// one provider's calendar serialize through it, which is what makes
	// availability-check-then-book a single atomic unit.
	WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error
}
