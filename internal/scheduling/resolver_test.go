package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// 2024-01-08 is a Monday.
var monday = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

func window(dow int, start, end string) AvailabilityWindow {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	return AvailabilityWindow{
		ID:        uuid.New(),
		DayOfWeek: dow,
		StartTime: s,
		EndTime:   e,
	}
}

func appointmentAt(t time.Time, minutes int, status AppointmentStatus) Appointment {
	return Appointment{
		ID:              uuid.New(),
		ScheduledAt:     t,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func TestISOWeekday(t *testing.T) {
	if got := ISOWeekday(monday); got != 1 {
		t.Fatalf("monday should be 1, got %d", got)
	}
	sunday := monday.AddDate(0, 0, 6)
	if got := ISOWeekday(sunday); got != 7 {
		t.Fatalf("sunday should be 7, got %d", got)
	}
}

func TestWorkingIntervalsFiltersByWeekday(t *testing.T) {
	windows := []AvailabilityWindow{
		window(1, "13:00", "17:00"),
		window(1, "09:00", "12:00"),
		window(2, "09:00", "12:00"),
	}

	got := WorkingIntervals(monday, windows)
	if len(got) != 2 {
		t.Fatalf("expected 2 monday intervals, got %d", len(got))
	}
	if !got[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("intervals not sorted, first starts at %s", got[0].Start)
	}
	if !got[1].End.Equal(monday.Add(17 * time.Hour)) {
		t.Fatalf("second interval ends at %s", got[1].End)
	}
}

func TestEffectiveAvailabilityEmptyWithoutWindows(t *testing.T) {
	got := EffectiveAvailability(monday, nil, nil, nil)
	if len(got) != 0 {
		t.Fatalf("expected no availability, got %v", got)
	}
}

func TestEffectiveAvailabilityVoidedByHoliday(t *testing.T) {
	windows := []AvailabilityWindow{window(1, "09:00", "12:00")}
	holiday := &HolidayException{Date: monday, Reason: "conference"}

	got := EffectiveAvailability(monday, windows, holiday, nil)
	if len(got) != 0 {
		t.Fatalf("holiday should void availability, got %v", got)
	}
}

func TestEffectiveAvailabilitySubtractsBookings(t *testing.T) {
	windows := []AvailabilityWindow{window(1, "09:00", "12:00")}
	appts := []Appointment{
		appointmentAt(monday.Add(10*time.Hour), 30, StatusScheduled),
		appointmentAt(monday.Add(9*time.Hour), 30, StatusScheduled),
		appointmentAt(monday.Add(11*time.Hour), 60, StatusCancelled), // ignored
	}

	got := EffectiveAvailability(monday, windows, nil, appts)

	want := []Interval{
		{Start: monday.Add(9*time.Hour + 30*time.Minute), End: monday.Add(10 * time.Hour)},
		{Start: monday.Add(10*time.Hour + 30*time.Minute), End: monday.Add(12 * time.Hour)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d free intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d mismatch: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestEffectiveAvailabilityDisjointAndSorted(t *testing.T) {
	windows := []AvailabilityWindow{
		window(1, "09:00", "12:00"),
		window(1, "13:00", "17:00"),
	}
	appts := []Appointment{
		appointmentAt(monday.Add(9*time.Hour+15*time.Minute), 45, StatusScheduled),
		appointmentAt(monday.Add(14*time.Hour), 90, StatusScheduled),
		appointmentAt(monday.Add(11*time.Hour), 120, StatusScheduled), // spills past window end
	}

	got := EffectiveAvailability(monday, windows, nil, appts)
	for i := 1; i < len(got); i++ {
		if !got[i-1].End.Before(got[i].Start) && !got[i-1].End.Equal(got[i].Start) {
			t.Fatalf("intervals overlap or unsorted: %v then %v", got[i-1], got[i])
		}
		if got[i-1].Overlaps(got[i]) {
			t.Fatalf("intervals not disjoint: %v and %v", got[i-1], got[i])
		}
	}
	for _, iv := range got {
		if !iv.Start.Before(iv.End) {
			t.Fatalf("degenerate interval %v", iv)
		}
	}
}

func TestSubtractBusyBookingCoveringWholeWindow(t *testing.T) {
	working := []Interval{{Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)}}
	busy := []Interval{{Start: monday.Add(8 * time.Hour), End: monday.Add(11 * time.Hour)}}

	if got := SubtractBusy(working, busy); len(got) != 0 {
		t.Fatalf("fully busy window should yield nothing, got %v", got)
	}
}

func TestCoveredBy(t *testing.T) {
	intervals := []Interval{
		{Start: monday.Add(9 * time.Hour), End: monday.Add(12 * time.Hour)},
		{Start: monday.Add(13 * time.Hour), End: monday.Add(17 * time.Hour)},
	}

	inside := Interval{Start: monday.Add(9 * time.Hour), End: monday.Add(9*time.Hour + 30*time.Minute)}
	if !CoveredBy(intervals, inside) {
		t.Fatal("slot at window start should be covered")
	}

	spansEnd := Interval{Start: monday.Add(11*time.Hour + 45*time.Minute), End: monday.Add(12*time.Hour + 15*time.Minute)}
	if CoveredBy(intervals, spansEnd) {
		t.Fatal("slot extending past window end must not be covered")
	}

	acrossGap := Interval{Start: monday.Add(11*time.Hour + 30*time.Minute), End: monday.Add(13*time.Hour + 30*time.Minute)}
	if CoveredBy(intervals, acrossGap) {
		t.Fatal("slot spanning the lunch gap must not be covered")
	}
}
