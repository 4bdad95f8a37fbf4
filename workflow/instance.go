package workflow

import (
	"time"

	"github.com/formflow/formflow/form"
)

// Status is the status of a submission.
type Status string

const (
	StatusDraft Status = "draft"

	// StatusSubmitted is used for submissions of forms without a workflow.
	StatusSubmitted Status = "submitted"

	StatusPending     Status = "pending"
	StatusPendingInfo Status = "pending_info"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Terminal reports whether s is a final workflow outcome.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Submission is a validated form submission.
type Submission struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Data        form.Data `json:"data"`
	Status      Status    `json:"status"`

	// InstanceID is empty for submissions without a workflow.
	InstanceID  string     `json:"instance_id,omitempty"`
	AssignedTo  Assignment `json:"assigned_to,omitempty"`
	CurrentStep string     `json:"current_step,omitempty"`
}

// State is the lifecycle state of an instance.
type State int

const (
	NotStarted State = iota
	Active
	Stalled
	Terminated
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Stalled:
		return "stalled"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Instance is one run of a template for one submission.
type Instance struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	FormID       string `json:"form_id"`

	// Template is a copy of the template the instance was started with.
	Template Template `json:"template"`

	// CurrentStep is empty once terminated and while stalled.
	CurrentStep string `json:"current_step,omitempty"`
	Active      bool   `json:"active"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Outcome is set when terminated.
	Outcome Status `json:"outcome,omitempty"`

	// LastActivity is the time of the most recent history entry.
	LastActivity time.Time `json:"last_activity"`

	// Assignment overrides the current step's assignment after a delegation.
	// It is cleared whenever the current step changes.
	Assignment *Assignment `json:"assignment,omitempty"`

	// Version is incremented on every stored transition.
	Version int64 `json:"version"`
}

// State returns the lifecycle state of inst.
func (inst *Instance) State() State {
	switch {
	case inst == nil || inst.StartedAt.IsZero():
		return NotStarted
	case !inst.Active:
		return Terminated
	case inst.CurrentStep == "":
		return Stalled
	}
	return Active
}

// Step returns the current step or nil.
func (inst *Instance) Step() *Step {
	if inst == nil || inst.CurrentStep == "" {
		return nil
	}
	return inst.Template.Step(inst.CurrentStep)
}

// CurrentAssignment returns who may act on the current step.
func (inst *Instance) CurrentAssignment() Assignment {
	if inst.Assignment != nil {
		return *inst.Assignment
	}
	if s := inst.Step(); s != nil {
		return s.Assignment
	}
	return Assignment{}
}

// Snapshot is the recorded state of an instance before or after a transition.
type Snapshot struct {
	CurrentStep string     `json:"current_step,omitempty"`
	Active      bool       `json:"active"`
	Status      Status     `json:"status"`
	Assignment  Assignment `json:"assignment,omitempty"`
}

// Snapshot captures the state of inst and its submission status.
func (inst *Instance) Snapshot(status Status) *Snapshot {
	return &Snapshot{
		CurrentStep: inst.CurrentStep,
		Active:      inst.Active,
		Status:      status,
		Assignment:  inst.CurrentAssignment(),
	}
}

// HistoryEntry is an immutable record of one instance transition.
type HistoryEntry struct {
	ID         string     `json:"id"`
	InstanceID string     `json:"instance_id"`
	Step       string     `json:"step,omitempty"`
	Action     ActionType `json:"action"`
	ActionName string     `json:"action_name,omitempty"`

	// Actor is empty for system actions.
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`

	DataBefore *Snapshot `json:"data_before,omitempty"`
	DataAfter  *Snapshot `json:"data_after,omitempty"`
}
