package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code serves pooled reads and transactional writes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// Helpers

func toPGTimeOfDay(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * 60 * 1_000_000, Valid: true}
}

func fromPGTimeOfDay(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / (60 * 1_000_000))
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialization, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var start, end pgtype.Time

	err := row.Scan(&w.ID, &w.ProviderID, &w.DayOfWeek, &start, &end, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.StartTime = fromPGTimeOfDay(start)
	w.EndTime = fromPGTimeOfDay(end)
	return &w, nil
}

func scanHoliday(row pgx.Row) (*HolidayException, error) {
	var h HolidayException
	err := row.Scan(&h.ID, &h.ProviderID, &h.Date, &h.Reason, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHolidayNotFound
		}
		return nil, err
	}
	h.Date = StartOfDay(h.Date)
	return &h, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.ScheduledAt,
		&a.DurationMinutes, &a.Status, &a.Reason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.ProviderID, &v.AppointmentID,
		&v.VisitAt, &v.Notes, &v.Diagnosis, &v.Prescription, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Providers and patients

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialization, enabled, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, specialization, enabled, created_at, updated_at
		FROM providers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Availability windows

func (r *PgRepository) CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	id := uuid.New()
	row := r.q.QueryRow(ctx, `
		INSERT INTO availability_windows (id, provider_id, day_of_week, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, provider_id, day_of_week, start_time, end_time, created_at
	`, id, w.ProviderID, w.DayOfWeek, toPGTimeOfDay(w.StartTime), toPGTimeOfDay(w.EndTime))
	return scanWindow(row)
}

func (r *PgRepository) UpdateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE availability_windows
		SET day_of_week = $2, start_time = $3, end_time = $4
		WHERE id = $1
		RETURNING id, provider_id, day_of_week, start_time, end_time, created_at
	`, w.ID, w.DayOfWeek, toPGTimeOfDay(w.StartTime), toPGTimeOfDay(w.EndTime))
	return scanWindow(row)
}

func (r *PgRepository) GetWindowByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time, created_at
		FROM availability_windows
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgRepository) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time, created_at
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY day_of_week, start_time
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

// Holiday exceptions

func (r *PgRepository) CreateHoliday(ctx context.Context, h HolidayException) (*HolidayException, error) {
	id := uuid.New()
	row := r.q.QueryRow(ctx, `
		INSERT INTO holiday_exceptions (id, provider_id, date, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, provider_id, date, reason, created_at
	`, id, h.ProviderID, h.Date, h.Reason)
	return scanHoliday(row)
}

func (r *PgRepository) UpdateHoliday(ctx context.Context, h HolidayException) (*HolidayException, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE holiday_exceptions
		SET date = $2, reason = $3
		WHERE id = $1
		RETURNING id, provider_id, date, reason, created_at
	`, h.ID, h.Date, h.Reason)
	return scanHoliday(row)
}

func (r *PgRepository) GetHolidayByID(ctx context.Context, id uuid.UUID) (*HolidayException, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, date, reason, created_at
		FROM holiday_exceptions
		WHERE id = $1
	`, id)
	return scanHoliday(row)
}

func (r *PgRepository) GetHolidayByDate(ctx context.Context, providerID uuid.UUID, date time.Time) (*HolidayException, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, date, reason, created_at
		FROM holiday_exceptions
		WHERE provider_id = $1 AND date = $2
	`, providerID, StartOfDay(date))
	return scanHoliday(row)
}

func (r *PgRepository) DeleteHoliday(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM holiday_exceptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrHolidayNotFound
	}
	return nil
}

func (r *PgRepository) ListHolidays(ctx context.Context, providerID uuid.UUID) ([]HolidayException, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, provider_id, date, reason, created_at
		FROM holiday_exceptions
		WHERE provider_id = $1
		ORDER BY date
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HolidayException
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

// Appointments

const appointmentColumns = `id, patient_id, provider_id, scheduled_at, duration_minutes, status, reason, created_at, updated_at`

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	id := uuid.New()
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, scheduled_at, duration_minutes, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PatientID, a.ProviderID, a.ScheduledAt, a.DurationMinutes, a.Status, a.Reason)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, reason string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    duration_minutes = $3,
		    reason = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, scheduledAt, durationMinutes, reason)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.ProviderID != nil {
		add("provider_id = ?", *f.ProviderID)
	}
	if f.PatientID != nil {
		add("patient_id = ?", *f.PatientID)
	}
	if f.From != nil {
		add("scheduled_at >= ?", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < ?", *f.To)
	}
	if f.Status != nil {
		add("status = ?", *f.Status)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY scheduled_at`
	args = append(args, f.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListActiveAppointmentsInRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'CANCELLED'
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Visits

const visitColumns = `id, patient_id, provider_id, appointment_id, visit_at, notes, diagnosis, prescription, created_at`

func (r *PgRepository) CreateVisit(ctx context.Context, v Visit) (*Visit, error) {
	id := uuid.New()
	row := r.q.QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, provider_id, appointment_id, visit_at, notes, diagnosis, prescription, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING `+visitColumns+`
	`, id, v.PatientID, v.ProviderID, v.AppointmentID, v.VisitAt, v.Notes, v.Diagnosis, v.Prescription)
	return scanVisit(row)
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) GetVisitByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Visit, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE appointment_id = $1
	`, appointmentID)
	return scanVisit(row)
}

func (r *PgRepository) ListVisits(ctx context.Context, f VisitFilter) ([]Visit, error) {
	var (
		conds []string
		args  []any
	)

	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		conds = append(conds, "provider_id = $"+strconv.Itoa(len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, "patient_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + visitColumns + ` FROM visits`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY visit_at DESC`
	args = append(args, f.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev SchedulingEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO scheduling_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert scheduling event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// WithProviderTx serializes all calendar writes for one provider behind
// a SELECT ... FOR UPDATE on the provider row, then runs fn with a
// tx-scoped repository. Transient begin/commit failures map to
// ErrRetryable so callers can safely retry.
func (r *PgRepository) WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error {
	if r.pool == nil {
		// Already inside a transaction.
		return fn(r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrRetryable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM providers WHERE id = $1 FOR UPDATE`, providerID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProviderNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: provider lock timed out", ErrRetryable)
		}
		return fmt.Errorf("lock provider row: %w", err)
	}

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrRetryable, err)
	}
	return nil
}
