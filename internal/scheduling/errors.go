package scheduling

import "errors"

// Error taxonomy. Callers match with errors.Is; the domain wraps these
// with fmt.Errorf("%w: ...") to carry detail for user-facing messages.
var (
	// ErrValidation covers malformed input: inverted or zero-length
	// windows, bad day-of-week values, duplicate holidays, disabled
	// providers, non-positive durations.
	ErrValidation = errors.New("validation error")

	// ErrAvailability means the requested slot does not sit inside the
	// provider's effective availability for that date.
	ErrAvailability = errors.New("slot not within provider availability")

	// ErrConflict means the requested slot overlaps an existing
	// non-cancelled appointment for the provider.
	ErrConflict = errors.New("slot conflicts with an existing appointment")

	// ErrInvalidTransition means a status change was attempted from a
	// terminal state, or a reschedule of a non-scheduled appointment.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLink means a visit could not be attached to the named
	// appointment (wrong provider/patient, already linked, or cancelled).
	ErrLink = errors.New("visit cannot be linked to appointment")

	// ErrRetryable marks transient store failures and lock contention.
	// The identical request is safe to retry.
	ErrRetryable = errors.New("transient scheduling failure, retry")
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrWindowNotFound      = errors.New("availability window not found")
	ErrHolidayNotFound     = errors.New("holiday exception not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrVisitNotFound       = errors.New("visit not found")
)
