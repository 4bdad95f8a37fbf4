// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	FormID       = "form_id"
	SubmissionID = "submission_id"
	InstanceID   = "instance_id"
	TemplateName = "template_name"
	StepName     = "step_name"
	Action       = "action"

	// the identifier of the acting user. empty for system actions.
	Actor = "actor"

	// notification kind (e.g. "step_assigned", "completed")
	Notification = "notification"

	// name of a notification subscription
	Subscription = "subscription"

	// a context-dependent numerical count/length of something
	GenericCount = "count"
)
