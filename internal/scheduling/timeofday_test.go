package scheduling

import (
	"errors"
	"testing"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("parse 09:30: %v", err)
	}
	if got != TimeOfDay(9*60+30) {
		t.Fatalf("09:30 parsed to %d minutes", got)
	}
	if got.String() != "09:30" {
		t.Fatalf("round trip gave %q", got.String())
	}
}

func TestParseTimeOfDayRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "9", "25:00", "09:61", "ab:cd", "24:01"} {
		if _, err := ParseTimeOfDay(s); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q should fail validation, got %v", s, err)
		}
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var tod TimeOfDay
	if err := tod.UnmarshalJSON([]byte(`"14:05"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, err := tod.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"14:05"` {
		t.Fatalf("marshal gave %s", data)
	}
}
