package scheduling

// The appointment lifecycle is a small finite state machine:
// SCHEDULED may move to COMPLETED or CANCELLED, both terminal.
// Re-booking after a terminal state requires a new appointment.
var validTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusCompleted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidStatus(s AppointmentStatus) bool {
	_, ok := validTransitions[s]
	return ok
}
