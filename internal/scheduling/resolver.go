package scheduling

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other sits entirely inside i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WorkingIntervals maps the provider's recurring windows onto a concrete
// date, before any bookings are considered. Windows for other weekdays
// are ignored. Output is sorted ascending; windows for one provider+day
// are non-overlapping by invariant, so no merge is needed.
func WorkingIntervals(date time.Time, windows []AvailabilityWindow) []Interval {
	day := StartOfDay(date)
	dow := ISOWeekday(day)

	var out []Interval
	for _, w := range windows {
		if w.DayOfWeek != dow {
			continue
		}
		out = append(out, Interval{
			Start: w.StartTime.OnDate(day),
			End:   w.EndTime.OnDate(day),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// SubtractBusy removes every busy interval from the working set,
// producing the disjoint free sub-intervals sorted by start time.
func SubtractBusy(working []Interval, busy []Interval) []Interval {
	sorted := make([]Interval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var free []Interval
	for _, w := range working {
		cursor := w.Start
		for _, b := range sorted {
			if !b.End.After(cursor) || !b.Start.Before(w.End) {
				continue
			}
			if b.Start.After(cursor) {
				free = append(free, Interval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(w.End) {
			free = append(free, Interval{Start: cursor, End: w.End})
		}
	}
	return free
}

// EffectiveAvailability derives the bookable intervals for one
// provider/date: recurring windows, voided entirely on a holiday, minus
// every non-cancelled appointment. Pure function, no store access.
func EffectiveAvailability(date time.Time, windows []AvailabilityWindow, holiday *HolidayException, appts []Appointment) []Interval {
	if holiday != nil {
		return nil
	}

	working := WorkingIntervals(date, windows)
	if len(working) == 0 {
		return nil
	}

	var busy []Interval
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		busy = append(busy, a.Interval())
	}

	return SubtractBusy(working, busy)
}

// CoveredBy reports whether slot sits entirely inside one of the
// intervals. Slots spanning a gap between two windows do not count.
func CoveredBy(intervals []Interval, slot Interval) bool {
	for _, iv := range intervals {
		if iv.Contains(slot) {
			return true
		}
	}
	return false
}
