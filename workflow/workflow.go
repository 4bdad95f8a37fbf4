package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/formflow/formflow/condition"
)

var (
	// ErrUnauthorized is returned when an actor may not act on the current step.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCurrentStep is returned for actions on terminated or stalled instances.
	ErrNoCurrentStep = errors.New("no current step")

	// ErrInvalidAction is returned for actions not permitted at the
	// current step or missing required arguments.
	ErrInvalidAction = errors.New("invalid action")

	// ErrCommentRequired is returned when an action requires a comment but none was given.
	ErrCommentRequired = errors.New("comment required")

	// ErrUnknownStepName occurs when a step name is not part of a template.
	ErrUnknownStepName = errors.New("unknown step name")

	// ErrInvalidTemplate indicates a malformed template.
	ErrInvalidTemplate = errors.New("invalid template")
)

// ActionType is the kind of action an actor takes on a step.
type ActionType string

const (
	Approve     ActionType = "approve"
	Reject      ActionType = "reject"
	RequestInfo ActionType = "request_info"
	Delegate    ActionType = "delegate"

	// Start and Reassign are only recorded in history: for instance
	// start and administrative reassignment. They are never permitted
	// step actions.
	Start    ActionType = "start"
	Reassign ActionType = "reassign"
)

// Valid reports whether a is a step action type.
func (a ActionType) Valid() bool {
	switch a {
	case Approve, Reject, RequestInfo, Delegate:
		return true
	}
	return false
}

// StepType describes the purpose of a step. It is informational and
// does not change how the engine processes the step.
type StepType string

const (
	StepApproval     StepType = "approval"
	StepReview       StepType = "review"
	StepNotification StepType = "notification"
	StepCondition    StepType = "condition"
	StepParallel     StepType = "parallel"
)

// Assignment identifies who may act on a step.
// At most one of the fields is set. A zero Assignment means the step is
// system-only: only administrators and the system may act on it.
type Assignment struct {
	Actor string `json:"actor,omitempty"`
	Group string `json:"group,omitempty"`
	Role  string `json:"role,omitempty"`
}

// IsZero reports whether nobody is assigned.
func (a Assignment) IsZero() bool {
	return a.Actor == "" && a.Group == "" && a.Role == ""
}

// Check reports whether more than one assignee kind is set.
func (a Assignment) Check() error {
	n := 0
	for _, s := range []string{a.Actor, a.Group, a.Role} {
		if s != "" {
			n++
		}
	}
	if n > 1 {
		return errors.New("more than one assignee set")
	}
	return nil
}

func (a Assignment) String() string {
	switch {
	case a.Actor != "":
		return "actor:" + a.Actor
	case a.Group != "":
		return "group:" + a.Group
	case a.Role != "":
		return "role:" + a.Role
	}
	return "system"
}

// Action is a permitted action at a step.
type Action struct {
	Type ActionType `json:"action_type"`

	// Name is a human readable label for the action.
	Name string `json:"name,omitempty"`

	// NextStep is the name of a step to jump to after an approval.
	// It bypasses gate conditions.
	NextStep string `json:"next_step,omitempty"`

	RequiresComment bool `json:"requires_comment,omitempty"`
}

// Duration is a time.Duration that marshals as a Go duration string.
// It unmarshals from either a duration string (e.g. "48h") or a
// number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = 0
			return nil
		}
		td, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(td)
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Step is one step of a workflow template.
type Step struct {
	Name  string   `json:"name"`
	Type  StepType `json:"step_type,omitempty"`
	Order int      `json:"order"`

	Assignment Assignment `json:"assignment,omitempty"`

	// Gate must be met by the submission data for the step to be eligible.
	// A nil gate is always eligible.
	Gate *condition.Condition `json:"condition,omitempty"`

	// AutoAdvanceAfter is the time without activity after which the
	// system approves the step. Zero disables auto-advance.
	AutoAdvanceAfter Duration `json:"auto_advance_after,omitempty"`

	// RequireAllApprovals is consulted by approval aggregators.
	RequireAllApprovals bool `json:"require_all_approvals,omitempty"`

	Actions []Action `json:"actions"`
}

// Action returns the first permitted action of type t, or nil.
func (s *Step) Action(t ActionType) *Action {
	if s == nil {
		return nil
	}
	for i := range s.Actions {
		if s.Actions[i].Type == t {
			return &s.Actions[i]
		}
	}
	return nil
}

// Template is an ordered list of steps bound to one form.
type Template struct {
	Name   string `json:"name"`
	FormID string `json:"form_id"`
	Steps  []Step `json:"steps"`
}

// Step returns the named step or nil.
func (t *Template) Step(name string) *Step {
	if t == nil {
		return nil
	}
	for i := range t.Steps {
		if t.Steps[i].Name == name {
			return &t.Steps[i]
		}
	}
	return nil
}

// Check reports authoring problems with t.
func (t *Template) Check() error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if t.FormID == "" {
		return fmt.Errorf("%w: missing form id", ErrInvalidTemplate)
	}
	names := make(map[string]struct{})
	orders := make(map[int]struct{})
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Name == "" {
			return fmt.Errorf("%w: step %d: missing name", ErrInvalidTemplate, i)
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("%w: duplicate step name: %s", ErrInvalidTemplate, s.Name)
		}
		names[s.Name] = struct{}{}
		if _, ok := orders[s.Order]; ok {
			return fmt.Errorf("%w: duplicate step order: %d", ErrInvalidTemplate, s.Order)
		}
		orders[s.Order] = struct{}{}
		if err := s.Assignment.Check(); err != nil {
			return fmt.Errorf("%w: step %s: %v", ErrInvalidTemplate, s.Name, err)
		}
		if err := s.Gate.Check(); err != nil {
			return fmt.Errorf("%w: step %s: condition: %v", ErrInvalidTemplate, s.Name, err)
		}
		if s.AutoAdvanceAfter < 0 {
			return fmt.Errorf("%w: step %s: negative auto advance", ErrInvalidTemplate, s.Name)
		}
	}
	for i := range t.Steps {
		s := &t.Steps[i]
		for _, a := range s.Actions {
			if !a.Type.Valid() {
				return fmt.Errorf("%w: step %s: unknown action type: %s", ErrInvalidTemplate, s.Name, a.Type)
			}
			if a.NextStep == "" {
				continue
			}
			if _, ok := names[a.NextStep]; !ok {
				return fmt.Errorf("%w: step %s: next step %s: %v", ErrInvalidTemplate, s.Name, a.NextStep, ErrUnknownStepName)
			}
		}
	}
	return nil
}
