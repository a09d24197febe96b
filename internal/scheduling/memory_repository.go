package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed Repository. It backs unit tests and
// dry runs; WithProviderTx serializes writers per provider the same way
// the Postgres row lock does.
type MemoryRepository struct {
	mu           sync.RWMutex
	providers    map[uuid.UUID]Provider
	patients     map[uuid.UUID]Patient
	windows      map[uuid.UUID]AvailabilityWindow
	holidays     map[uuid.UUID]HolidayException
	appointments map[uuid.UUID]Appointment
	visits       map[uuid.UUID]Visit
	events       []SchedulingEvent

	txMu    sync.Mutex
	txLocks map[uuid.UUID]*sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]Provider),
		patients:     make(map[uuid.UUID]Patient),
		windows:      make(map[uuid.UUID]AvailabilityWindow),
		holidays:     make(map[uuid.UUID]HolidayException),
		appointments: make(map[uuid.UUID]Appointment),
		visits:       make(map[uuid.UUID]Visit),
		txLocks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// SeedProvider registers a provider directly. Test/bootstrap helper;
// provider CRUD itself is outside the scheduling core.
func (r *MemoryRepository) SeedProvider(p Provider) Provider {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	return p
}

func (r *MemoryRepository) SeedPatient(p Patient) Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return p
}

// Events returns a snapshot of the audit trail.
func (r *MemoryRepository) Events() []SchedulingEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SchedulingEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListProviders(_ context.Context) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) CreateWindow(_ context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	w.ID = uuid.New()
	w.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[w.ID] = w
	return &w, nil
}

func (r *MemoryRepository) UpdateWindow(_ context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.windows[w.ID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	existing.DayOfWeek = w.DayOfWeek
	existing.StartTime = w.StartTime
	existing.EndTime = w.EndTime
	r.windows[w.ID] = existing
	return &existing, nil
}

func (r *MemoryRepository) GetWindowByID(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (r *MemoryRepository) DeleteWindow(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[id]; !ok {
		return ErrWindowNotFound
	}
	delete(r.windows, id)
	return nil
}

func (r *MemoryRepository) ListWindows(_ context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *MemoryRepository) CreateHoliday(_ context.Context, h HolidayException) (*HolidayException, error) {
	h.ID = uuid.New()
	h.Date = StartOfDay(h.Date)
	h.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.holidays[h.ID] = h
	return &h, nil
}

func (r *MemoryRepository) UpdateHoliday(_ context.Context, h HolidayException) (*HolidayException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.holidays[h.ID]
	if !ok {
		return nil, ErrHolidayNotFound
	}
	existing.Date = StartOfDay(h.Date)
	existing.Reason = h.Reason
	r.holidays[h.ID] = existing
	return &existing, nil
}

func (r *MemoryRepository) GetHolidayByID(_ context.Context, id uuid.UUID) (*HolidayException, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holidays[id]
	if !ok {
		return nil, ErrHolidayNotFound
	}
	return &h, nil
}

func (r *MemoryRepository) GetHolidayByDate(_ context.Context, providerID uuid.UUID, date time.Time) (*HolidayException, error) {
	day := StartOfDay(date)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.holidays {
		if h.ProviderID == providerID && h.Date.Equal(day) {
			out := h
			return &out, nil
		}
	}
	return nil, ErrHolidayNotFound
}

func (r *MemoryRepository) DeleteHoliday(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holidays[id]; !ok {
		return ErrHolidayNotFound
	}
	delete(r.holidays, id)
	return nil
}

func (r *MemoryRepository) ListHolidays(_ context.Context, providerID uuid.UUID) ([]HolidayException, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []HolidayException
	for _, h := range r.holidays {
		if h.ProviderID == providerID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentSchedule(_ context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, reason string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.ScheduledAt = scheduledAt
	a.DurationMinutes = durationMinutes
	a.Reason = reason
	a.UpdatedAt = time.Now().UTC()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })

	out = paginate(out, f.Offset, f.Limit)
	return out, nil
}

func (r *MemoryRepository) ListActiveAppointmentsInRange(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	span := Interval{Start: from, End: to}
	var out []Appointment
	for _, a := range r.appointments {
		if a.ProviderID != providerID || a.Status == StatusCancelled {
			continue
		}
		if a.Interval().Overlaps(span) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *MemoryRepository) CreateVisit(_ context.Context, v Visit) (*Visit, error) {
	v.ID = uuid.New()
	v.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[v.ID] = v
	return &v, nil
}

func (r *MemoryRepository) GetVisitByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return &v, nil
}

func (r *MemoryRepository) GetVisitByAppointment(_ context.Context, appointmentID uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.visits {
		if v.AppointmentID != nil && *v.AppointmentID == appointmentID {
			out := v
			return &out, nil
		}
	}
	return nil, ErrVisitNotFound
}

func (r *MemoryRepository) ListVisits(_ context.Context, f VisitFilter) ([]Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Visit
	for _, v := range r.visits {
		if f.ProviderID != nil && v.ProviderID != *f.ProviderID {
			continue
		}
		if f.PatientID != nil && v.PatientID != *f.PatientID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitAt.After(out[j].VisitAt) })

	out = paginate(out, f.Offset, f.Limit)
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev SchedulingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) WithProviderTx(ctx context.Context, providerID uuid.UUID, fn func(Repository) error) error {
	if _, err := r.GetProviderByID(ctx, providerID); err != nil {
		return err
	}

	r.txMu.Lock()
	lock, ok := r.txLocks[providerID]
	if !ok {
		lock = &sync.Mutex{}
		r.txLocks[providerID] = lock
	}
	r.txMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(r)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
