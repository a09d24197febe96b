package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
// Windows are confined to a single day, so the valid range is 0..1440
// inclusive (1440 only as an end bound, "24:00").
type TimeOfDay int

const minutesPerDay = 24 * 60

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrValidation, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrValidation, s)
	}

	t := TimeOfDay(h*60 + m)
	if t > minutesPerDay {
		return 0, fmt.Errorf("%w: time %q past end of day", ErrValidation, s)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

// OnDate anchors the wall-clock time to a concrete date. The date is
// expected to be midnight UTC.
func (t TimeOfDay) OnDate(date time.Time) time.Time {
	return date.Add(time.Duration(t) * time.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
