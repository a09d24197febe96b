package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthops/scheduling-core/internal/config"
	redisclient "github.com/healthops/scheduling-core/internal/redis"
)

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	provider Provider
	patient  Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	provider := repo.SeedProvider(Provider{Name: "Dr. Osei", Enabled: true})
	patient := repo.SeedPatient(Patient{Name: "Maya Lindqvist"})

	svc := NewService(repo, redisclient.NoopLocker{}, config.Config{
		DefaultAppointmentMinutes: 30,
	})

	return &fixture{svc: svc, repo: repo, provider: provider, patient: patient}
}

// addMondayMorning gives the fixture provider a single recurring
// window: Monday 09:00-12:00.
func (f *fixture) addMondayMorning(t *testing.T) {
	t.Helper()
	start, _ := ParseTimeOfDay("09:00")
	end, _ := ParseTimeOfDay("12:00")
	_, err := f.svc.CreateWindow(context.Background(), f.provider.ID, 1, start, end)
	require.NoError(t, err)
}

func TestBookInsideAvailability(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.Equal(t, f.provider.ID, appt.ProviderID)
}

func TestBookOverlapFailsWithConflict(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour+15*time.Minute), 30, "follow-up")
	require.ErrorIs(t, err, ErrConflict)
}

func TestBookPastWindowEndFailsWithAvailability(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	// 11:45 + 30min extends past the 12:00 window end.
	_, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(11*time.Hour+45*time.Minute), 30, "late")
	require.ErrorIs(t, err, ErrAvailability)
}

func TestBookOnHolidayFailsButExistingBookingSurvives(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	_, err = f.svc.CreateHoliday(ctx, f.provider.ID, monday, "conference")
	require.NoError(t, err)

	free, err := f.svc.Resolve(ctx, f.provider.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, free, "holiday voids the whole day")

	_, err = f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(10*time.Hour), 30, "walk-in attempt")
	require.ErrorIs(t, err, ErrAvailability)

	// Pre-existing bookings on exception days are not auto-cancelled.
	current, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, current.Status)
}

func TestCancelFreesTheInterval(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(10*time.Hour), 30, "checkup")
	require.NoError(t, err)

	free, err := f.svc.Resolve(ctx, f.provider.ID, monday)
	require.NoError(t, err)
	require.Len(t, free, 2)

	cancelled, err := f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	free, err = f.svc.Resolve(ctx, f.provider.ID, monday)
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.True(t, free[0].Start.Equal(monday.Add(9*time.Hour)))
	assert.True(t, free[0].End.Equal(monday.Add(12*time.Hour)))

	// The freed slot is bookable again.
	_, err = f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(10*time.Hour), 30, "rebooked")
	require.NoError(t, err)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Complete(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Transition(ctx, appt.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRescheduleExcludesOwnInterval(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	// Shifting by 15 minutes overlaps the old interval; only the own
	// interval exclusion makes this legal.
	moved, err := f.svc.Reschedule(ctx, appt.ID, monday.Add(9*time.Hour+15*time.Minute), 30, "")
	require.NoError(t, err)
	assert.True(t, moved.ScheduledAt.Equal(monday.Add(9*time.Hour+15*time.Minute)))
	assert.Equal(t, "checkup", moved.Reason, "blank reason keeps the old one")
}

func TestRescheduleConflictsWithOtherAppointment(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "a")
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(10*time.Hour), 30, "b")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, first.ID, monday.Add(10*time.Hour+15*time.Minute), 30, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRescheduleCancelledAppointmentRejected(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, appt.ID, monday.Add(10*time.Hour), 30, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBookAppliesDefaultDuration(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 0, "checkup")
	require.NoError(t, err)
	assert.Equal(t, 30, appt.DurationMinutes)
}

func TestBookDisabledProviderRejected(t *testing.T) {
	f := newFixture(t)
	disabled := f.repo.SeedProvider(Provider{Name: "Dr. Closed", Enabled: false})

	start, _ := ParseTimeOfDay("09:00")
	end, _ := ParseTimeOfDay("12:00")
	_, err := f.svc.CreateWindow(context.Background(), disabled.ID, 1, start, end)
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), disabled.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "x")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookUnknownProviderAndPatient(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, uuid.New(), f.patient.ID, monday.Add(9*time.Hour), 30, "x")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = f.svc.Book(ctx, f.provider.ID, uuid.New(), monday.Add(9*time.Hour), 30, "x")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateWindowValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nine, _ := ParseTimeOfDay("09:00")
	noon, _ := ParseTimeOfDay("12:00")

	_, err := f.svc.CreateWindow(ctx, f.provider.ID, 0, nine, noon)
	assert.ErrorIs(t, err, ErrValidation, "day below range")

	_, err = f.svc.CreateWindow(ctx, f.provider.ID, 8, nine, noon)
	assert.ErrorIs(t, err, ErrValidation, "day above range")

	_, err = f.svc.CreateWindow(ctx, f.provider.ID, 1, noon, nine)
	assert.ErrorIs(t, err, ErrValidation, "inverted window")

	_, err = f.svc.CreateWindow(ctx, f.provider.ID, 1, nine, nine)
	assert.ErrorIs(t, err, ErrValidation, "zero-length window")
}

func TestCreateWindowOverlapRejected(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	ten, _ := ParseTimeOfDay("10:00")
	one, _ := ParseTimeOfDay("13:00")
	_, err := f.svc.CreateWindow(ctx, f.provider.ID, 1, ten, one)
	assert.ErrorIs(t, err, ErrValidation)

	// Same times on another day are fine.
	_, err = f.svc.CreateWindow(ctx, f.provider.ID, 2, ten, one)
	assert.NoError(t, err)
}

func TestCreateHolidayDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateHoliday(ctx, f.provider.ID, monday, "conference")
	require.NoError(t, err)

	_, err = f.svc.CreateHoliday(ctx, f.provider.ID, monday.Add(3*time.Hour), "again")
	assert.ErrorIs(t, err, ErrValidation, "same calendar date regardless of time component")
}

func TestRecordVisitWalkIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	visit, err := f.svc.RecordVisit(ctx, f.provider.ID, f.patient.ID, nil, "flu", "rest", "walk-in")
	require.NoError(t, err)
	assert.Nil(t, visit.AppointmentID)
	assert.Equal(t, "flu", visit.Diagnosis)
}

func TestRecordVisitCompletesScheduledAppointment(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	visit, err := f.svc.RecordVisit(ctx, f.provider.ID, f.patient.ID, &appt.ID, "healthy", "", "all good")
	require.NoError(t, err)
	require.NotNil(t, visit.AppointmentID)
	assert.Equal(t, appt.ID, *visit.AppointmentID)

	current, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, current.Status)

	// A second visit against the same appointment must fail.
	_, err = f.svc.RecordVisit(ctx, f.provider.ID, f.patient.ID, &appt.ID, "again", "", "")
	assert.ErrorIs(t, err, ErrLink)
}

func TestRecordVisitLinkValidation(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	otherPatient := f.repo.SeedPatient(Patient{Name: "Jonah Petrov"})
	otherProvider := f.repo.SeedProvider(Provider{Name: "Dr. Vega", Enabled: true})

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)

	_, err = f.svc.RecordVisit(ctx, f.provider.ID, otherPatient.ID, &appt.ID, "", "", "")
	assert.ErrorIs(t, err, ErrLink, "wrong patient")

	_, err = f.svc.RecordVisit(ctx, otherProvider.ID, f.patient.ID, &appt.ID, "", "", "")
	assert.ErrorIs(t, err, ErrLink, "wrong provider")

	missing := uuid.New()
	_, err = f.svc.RecordVisit(ctx, f.provider.ID, f.patient.ID, &missing, "", "", "")
	assert.ErrorIs(t, err, ErrLink, "unknown appointment")

	_, err = f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordVisit(ctx, f.provider.ID, f.patient.ID, &appt.ID, "", "", "")
	assert.ErrorIs(t, err, ErrLink, "cancelled appointment")
}

func TestConcurrentBookingsAtMostOneWins(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)

	const attempts = 16
	slot := monday.Add(10 * time.Hour)

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.provider.ID, f.patient.ID, slot, 30, "contested")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, successes, "exactly one concurrent booking may win")
}

func TestBookingWritesAuditEvents(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "checkup")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentBooked, EventAppointmentCancelled}, types)
}

func TestListAppointmentsFilters(t *testing.T) {
	f := newFixture(t)
	f.addMondayMorning(t)
	ctx := context.Background()

	a1, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(9*time.Hour), 30, "a")
	require.NoError(t, err)
	a2, err := f.svc.Book(ctx, f.provider.ID, f.patient.ID, monday.Add(10*time.Hour), 30, "b")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, a2.ID)
	require.NoError(t, err)

	scheduled := StatusScheduled
	got, err := f.svc.ListAppointments(ctx, AppointmentFilter{
		ProviderID: &f.provider.ID,
		Status:     &scheduled,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a1.ID, got[0].ID)

	from := monday.Add(9*time.Hour + 30*time.Minute)
	got, err = f.svc.ListAppointments(ctx, AppointmentFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a2.ID, got[0].ID)
}
