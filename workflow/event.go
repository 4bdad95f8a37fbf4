package workflow

// Event identifies the kind of a workflow notification.
type Event string

const (
	EventStepAssigned  Event = "step_assigned"
	EventCompleted     Event = "completed"
	EventDelegated     Event = "delegated"
	EventRejected      Event = "rejected"
	EventInfoRequested Event = "info_requested"
	EventReminder      Event = "reminder"
)

// Valid reports whether ev is a known event.
func (ev Event) Valid() bool {
	switch ev {
	case EventStepAssigned, EventCompleted, EventDelegated, EventRejected, EventInfoRequested, EventReminder:
		return true
	}
	return false
}
