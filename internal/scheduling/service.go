package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/healthops/scheduling-core/internal/config"
	redisclient "github.com/healthops/scheduling-core/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventVisitRecorded          = "VISIT_RECORDED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
	}
}

// Providers

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	providers, err := s.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// Availability windows

func validateWindowBounds(dayOfWeek int, start, end TimeOfDay) error {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return fmt.Errorf("%w: day_of_week must be 1 (Monday) through 7 (Sunday)", ErrValidation)
	}
	if !start.Valid() || !end.Valid() {
		return fmt.Errorf("%w: window times must fall within a single day", ErrValidation)
	}
	if start >= end {
		return fmt.Errorf("%w: window start %s must be before end %s", ErrValidation, start, end)
	}
	return nil
}

func checkWindowOverlap(existing []AvailabilityWindow, dayOfWeek int, start, end TimeOfDay, exclude uuid.UUID) error {
	for _, w := range existing {
		if w.ID == exclude || w.DayOfWeek != dayOfWeek {
			continue
		}
		if start < w.EndTime && w.StartTime < end {
			return fmt.Errorf("%w: overlaps existing window %s-%s", ErrValidation, w.StartTime, w.EndTime)
		}
	}
	return nil
}

func (s *Service) CreateWindow(ctx context.Context, providerID uuid.UUID, dayOfWeek int, start, end TimeOfDay) (*AvailabilityWindow, error) {
	if err := validateWindowBounds(dayOfWeek, start, end); err != nil {
		return nil, err
	}

	var created *AvailabilityWindow
	err := s.repo.WithProviderTx(ctx, providerID, func(tx Repository) error {
		existing, err := tx.ListWindows(ctx, providerID)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		if err := checkWindowOverlap(existing, dayOfWeek, start, end, uuid.Nil); err != nil {
			return err
		}

		created, err = tx.CreateWindow(ctx, AvailabilityWindow{
			ProviderID: providerID,
			DayOfWeek:  dayOfWeek,
			StartTime:  start,
			EndTime:    end,
		})
		if err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateWindow(ctx context.Context, windowID uuid.UUID, dayOfWeek int, start, end TimeOfDay) (*AvailabilityWindow, error) {
	if err := validateWindowBounds(dayOfWeek, start, end); err != nil {
		return nil, err
	}

	window, err := s.repo.GetWindowByID(ctx, windowID)
	if err != nil {
		return nil, err
	}

	var updated *AvailabilityWindow
	err = s.repo.WithProviderTx(ctx, window.ProviderID, func(tx Repository) error {
		existing, err := tx.ListWindows(ctx, window.ProviderID)
		if err != nil {
			return fmt.Errorf("list windows: %w", err)
		}
		if err := checkWindowOverlap(existing, dayOfWeek, start, end, windowID); err != nil {
			return err
		}

		updated, err = tx.UpdateWindow(ctx, AvailabilityWindow{
			ID:         windowID,
			ProviderID: window.ProviderID,
			DayOfWeek:  dayOfWeek,
			StartTime:  start,
			EndTime:    end,
		})
		if err != nil {
			return fmt.Errorf("update window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteWindow(ctx context.Context, windowID uuid.UUID) error {
	return s.repo.DeleteWindow(ctx, windowID)
}

func (s *Service) ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListWindows(ctx, providerID)
}

// Holiday exceptions

func (s *Service) CreateHoliday(ctx context.Context, providerID uuid.UUID, date time.Time, reason string) (*HolidayException, error) {
	day := StartOfDay(date)

	var created *HolidayException
	err := s.repo.WithProviderTx(ctx, providerID, func(tx Repository) error {
		existing, err := tx.GetHolidayByDate(ctx, providerID, day)
		if err != nil && !errors.Is(err, ErrHolidayNotFound) {
			return fmt.Errorf("check holiday: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: holiday already exists on %s", ErrValidation, day.Format("2006-01-02"))
		}

		created, err = tx.CreateHoliday(ctx, HolidayException{
			ProviderID: providerID,
			Date:       day,
			Reason:     reason,
		})
		if err != nil {
			return fmt.Errorf("create holiday: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateHoliday(ctx context.Context, holidayID uuid.UUID, date time.Time, reason string) (*HolidayException, error) {
	day := StartOfDay(date)

	holiday, err := s.repo.GetHolidayByID(ctx, holidayID)
	if err != nil {
		return nil, err
	}

	var updated *HolidayException
	err = s.repo.WithProviderTx(ctx, holiday.ProviderID, func(tx Repository) error {
		existing, err := tx.GetHolidayByDate(ctx, holiday.ProviderID, day)
		if err != nil && !errors.Is(err, ErrHolidayNotFound) {
			return fmt.Errorf("check holiday: %w", err)
		}
		if existing != nil && existing.ID != holidayID {
			return fmt.Errorf("%w: holiday already exists on %s", ErrValidation, day.Format("2006-01-02"))
		}

		updated, err = tx.UpdateHoliday(ctx, HolidayException{
			ID:         holidayID,
			ProviderID: holiday.ProviderID,
			Date:       day,
			Reason:     reason,
		})
		if err != nil {
			return fmt.Errorf("update holiday: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteHoliday(ctx context.Context, holidayID uuid.UUID) error {
	return s.repo.DeleteHoliday(ctx, holidayID)
}

func (s *Service) ListHolidays(ctx context.Context, providerID uuid.UUID) ([]HolidayException, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListHolidays(ctx, providerID)
}

// Resolve computes the provider's effective availability for a date:
// recurring windows, voided on holidays, minus non-cancelled bookings.
// Read-only, runs lock-free on the pool.
func (s *Service) Resolve(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Interval, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}

	day := StartOfDay(date)

	windows, err := s.repo.ListWindows(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	holiday, err := s.repo.GetHolidayByDate(ctx, providerID, day)
	if err != nil && !errors.Is(err, ErrHolidayNotFound) {
		return nil, fmt.Errorf("check holiday: %w", err)
	}

	appts, err := s.repo.ListActiveAppointmentsInRange(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return EffectiveAvailability(day, windows, holiday, appts), nil
}

// Appointment ledger

// Book places an appointment inside the provider's effective
// availability. The availability check and the conflict check run inside
// one provider-locked transaction so concurrent bookings for overlapping
// intervals cannot both succeed.
func (s *Service) Book(ctx context.Context, providerID, patientID uuid.UUID, scheduledAt time.Time, durationMinutes int, reason string) (*Appointment, error) {
	if durationMinutes == 0 {
		durationMinutes = s.cfg.DefaultAppointmentMinutes
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	scheduledAt = scheduledAt.UTC()

	var created *Appointment
	err := s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, providerID, func(tx Repository) error {
			provider, err := tx.GetProviderByID(lockCtx, providerID)
			if err != nil {
				return err
			}
			if !provider.Enabled {
				return fmt.Errorf("%w: provider is not accepting appointments", ErrValidation)
			}

			if err := s.checkSlot(lockCtx, tx, providerID, scheduledAt, durationMinutes, uuid.Nil); err != nil {
				return err
			}

			created, err = tx.CreateAppointment(lockCtx, Appointment{
				PatientID:       patientID,
				ProviderID:      providerID,
				ScheduledAt:     scheduledAt,
				DurationMinutes: durationMinutes,
				Status:          StatusScheduled,
				Reason:          reason,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			s.logEvent(lockCtx, tx, &created.ID, EventAppointmentBooked, map[string]any{
				"provider_id":  providerID.String(),
				"patient_id":   patientID.String(),
				"scheduled_at": scheduledAt,
				"duration_min": durationMinutes,
			})
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: provider calendar is busy", ErrRetryable)
		}
		return nil, err
	}
	return created, nil
}

// Reschedule re-validates exactly as Book, excluding the appointment's
// own prior interval from the conflict check. Only SCHEDULED
// appointments can move.
func (s *Service) Reschedule(ctx context.Context, appointmentID uuid.UUID, scheduledAt time.Time, durationMinutes int, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, appt.Status)
	}

	if durationMinutes == 0 {
		durationMinutes = appt.DurationMinutes
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if reason == "" {
		reason = appt.Reason
	}

	scheduledAt = scheduledAt.UTC()

	var updated *Appointment
	err = s.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, appt.ProviderID, func(tx Repository) error {
			current, err := tx.GetAppointmentByID(lockCtx, appointmentID)
			if err != nil {
				return err
			}
			if current.Status != StatusScheduled {
				return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, current.Status)
			}

			if err := s.checkSlot(lockCtx, tx, appt.ProviderID, scheduledAt, durationMinutes, appointmentID); err != nil {
				return err
			}

			updated, err = tx.UpdateAppointmentSchedule(lockCtx, appointmentID, scheduledAt, durationMinutes, reason)
			if err != nil {
				return fmt.Errorf("reschedule appointment: %w", err)
			}

			s.logEvent(lockCtx, tx, &appointmentID, EventAppointmentRescheduled, map[string]any{
				"scheduled_at": scheduledAt,
				"duration_min": durationMinutes,
			})
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: provider calendar is busy", ErrRetryable)
		}
		return nil, err
	}
	return updated, nil
}

// checkSlot enforces the two booking invariants inside the caller's
// transaction: the slot must sit within a working window for the date
// (ErrAvailability) and must not overlap any non-cancelled appointment
// (ErrConflict). exclude skips the appointment's own interval on
// reschedule.
func (s *Service) checkSlot(ctx context.Context, tx Repository, providerID uuid.UUID, scheduledAt time.Time, durationMinutes int, exclude uuid.UUID) error {
	day := StartOfDay(scheduledAt)
	slot := Interval{Start: scheduledAt, End: scheduledAt.Add(time.Duration(durationMinutes) * time.Minute)}

	holiday, err := tx.GetHolidayByDate(ctx, providerID, day)
	if err != nil && !errors.Is(err, ErrHolidayNotFound) {
		return fmt.Errorf("check holiday: %w", err)
	}
	if holiday != nil {
		return fmt.Errorf("%w: provider is away on %s (%s)", ErrAvailability, day.Format("2006-01-02"), holiday.Reason)
	}

	windows, err := tx.ListWindows(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}
	if !CoveredBy(WorkingIntervals(day, windows), slot) {
		return fmt.Errorf("%w: %s-%s is outside working hours", ErrAvailability,
			slot.Start.Format("15:04"), slot.End.Format("15:04"))
	}

	appts, err := tx.ListActiveAppointmentsInRange(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	for _, a := range appts {
		if a.ID == exclude {
			continue
		}
		if a.Interval().Overlaps(slot) {
			return fmt.Errorf("%w: overlaps appointment at %s", ErrConflict, a.ScheduledAt.Format("15:04"))
		}
	}
	return nil
}

// Cancel marks an appointment CANCELLED. The row is kept for audit
// history and its interval becomes bookable again.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, appointmentID, StatusCancelled, EventAppointmentCancelled)
}

// Complete marks an appointment COMPLETED. Only legal from SCHEDULED.
func (s *Service) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, appointmentID, StatusCompleted, EventAppointmentCompleted)
}

// Transition applies a requested status change through the lifecycle
// state machine.
func (s *Service) Transition(ctx context.Context, appointmentID uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	switch to {
	case StatusCancelled:
		return s.Cancel(ctx, appointmentID)
	case StatusCompleted:
		return s.Complete(ctx, appointmentID)
	default:
		return nil, fmt.Errorf("%w: appointments never revert to %s", ErrInvalidTransition, to)
	}
}

func (s *Service) transition(ctx context.Context, appointmentID uuid.UUID, to AppointmentStatus, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appointmentID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, s.repo, &updated.ID, eventType, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})
	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// Visit linker

// RecordVisit creates a clinical visit, optionally linked to an
// appointment. A linked SCHEDULED appointment is completed in the same
// atomic unit so ledger state and clinical records never diverge.
func (s *Service) RecordVisit(ctx context.Context, providerID, patientID uuid.UUID, appointmentID *uuid.UUID, diagnosis, prescription, notes string) (*Visit, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	visit := Visit{
		PatientID:     patientID,
		ProviderID:    providerID,
		AppointmentID: appointmentID,
		VisitAt:       time.Now().UTC(),
		Notes:         notes,
		Diagnosis:     diagnosis,
		Prescription:  prescription,
	}

	if appointmentID == nil {
		// Walk-in: no ledger coupling, but the provider must exist.
		if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
			return nil, err
		}
		created, err := s.repo.CreateVisit(ctx, visit)
		if err != nil {
			return nil, fmt.Errorf("create visit: %w", err)
		}
		s.logEvent(ctx, s.repo, nil, EventVisitRecorded, map[string]any{
			"visit_id": created.ID.String(),
			"walk_in":  true,
		})
		return created, nil
	}

	var created *Visit
	err := s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		return s.repo.WithProviderTx(lockCtx, providerID, func(tx Repository) error {
			appt, err := tx.GetAppointmentByID(lockCtx, *appointmentID)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					return fmt.Errorf("%w: appointment does not exist", ErrLink)
				}
				return err
			}
			if appt.ProviderID != providerID {
				return fmt.Errorf("%w: appointment belongs to a different provider", ErrLink)
			}
			if appt.PatientID != patientID {
				return fmt.Errorf("%w: appointment belongs to a different patient", ErrLink)
			}
			if appt.Status == StatusCancelled {
				return fmt.Errorf("%w: appointment was cancelled", ErrLink)
			}

			if _, err := tx.GetVisitByAppointment(lockCtx, *appointmentID); err == nil {
				return fmt.Errorf("%w: appointment already has a visit", ErrLink)
			} else if !errors.Is(err, ErrVisitNotFound) {
				return fmt.Errorf("check linked visit: %w", err)
			}

			created, err = tx.CreateVisit(lockCtx, visit)
			if err != nil {
				return fmt.Errorf("create visit: %w", err)
			}

			if appt.Status == StatusScheduled {
				if _, err := tx.UpdateAppointmentStatus(lockCtx, appt.ID, StatusScheduled, StatusCompleted); err != nil {
					return fmt.Errorf("complete appointment: %w", err)
				}
				s.logEvent(lockCtx, tx, &appt.ID, EventAppointmentCompleted, map[string]any{
					"from": string(StatusScheduled),
					"to":   string(StatusCompleted),
				})
			}

			s.logEvent(lockCtx, tx, appointmentID, EventVisitRecorded, map[string]any{
				"visit_id": created.ID.String(),
			})
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: provider calendar is busy", ErrRetryable)
		}
		return nil, err
	}
	return created, nil
}

func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetVisitByID(ctx, id)
}

func (s *Service) ListVisits(ctx context.Context, f VisitFilter) ([]Visit, error) {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	visits, err := s.repo.ListVisits(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	return visits, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func (s *Service) logEvent(ctx context.Context, repo Repository, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := SchedulingEvent{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert scheduling event %s: %v", eventType, err)
	}
}
