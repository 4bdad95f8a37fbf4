// Package storage defines types and primitives for workflow engine storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/formflow/formflow/workflow"
)

var (
	// ErrNotFound is returned when a submission or instance does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a transition was computed against a
	// stale instance version. Callers may reload and retry.
	ErrConflict = errors.New("version conflict")

	// ErrAlreadyExists is returned when creating a duplicate submission or
	// a second instance for a submission.
	ErrAlreadyExists = errors.New("already exists")

	ErrEmptyTransition   = errors.New("empty transition")
	ErrMissingSubmission = errors.New("missing submission")
	ErrMissingInstance   = errors.New("missing instance")
	ErrMissingHistory    = errors.New("missing history entry")
	ErrMissingID         = errors.New("missing id")
)

// Transition is one atomic state change of a workflow instance.
// The instance carries its new version: a backend stores the transition
// only if its stored version equals Instance.Version-1.
type Transition struct {
	Instance   *workflow.Instance
	Submission *workflow.Submission
	History    *workflow.HistoryEntry
}

// Validate checks for missing values.
func (t *Transition) Validate() error {
	if t == nil {
		return ErrEmptyTransition
	}
	if t.Instance == nil {
		return ErrMissingInstance
	}
	if t.Instance.ID == "" {
		return ErrMissingID
	}
	if t.Submission == nil {
		return ErrMissingSubmission
	}
	if t.History == nil {
		return ErrMissingHistory
	}
	return nil
}

// Creation is a newly accepted submission and, optionally, its already
// started workflow instance and the start history entry.
type Creation struct {
	Submission *workflow.Submission
	Instance   *workflow.Instance
	History    *workflow.HistoryEntry
}

// Validate checks for missing values.
func (c *Creation) Validate() error {
	if c == nil || c.Submission == nil {
		return ErrMissingSubmission
	}
	if c.Submission.ID == "" {
		return ErrMissingID
	}
	if c.Instance != nil {
		if c.Instance.ID == "" {
			return ErrMissingID
		}
		if c.History == nil {
			return ErrMissingHistory
		}
	}
	return nil
}

// Storage is the primary interface for workflow engine backend storage implementations.
type Storage interface {
	// CreateSubmission atomically stores a submission with its instance
	// and start history entry (if any). Creation and first advance of an
	// instance are thereby never observed separately.
	CreateSubmission(ctx context.Context, c *Creation) error

	// RetrieveSubmission returns ErrNotFound if the submission does not exist.
	RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error)

	// RetrieveInstance returns ErrNotFound if the instance does not exist.
	RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error)

	// StoreTransition atomically saves the instance and submission and
	// appends the history entry. ErrConflict is returned on a version
	// mismatch in which case nothing is stored.
	StoreTransition(ctx context.Context, t *Transition) error

	// RetrieveHistory returns the history of an instance in append order.
	RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error)
}

// WorkerStorage is used by the workflow engine worker for async (scheduled) actions.
type WorkerStorage interface {
	// RetrieveActiveInstances returns all active instances, including stalled ones.
	RetrieveActiveInstances(ctx context.Context) ([]*workflow.Instance, error)
}

type AllStorage interface {
	Storage
	WorkerStorage
	SubscriptionStorage
}

// Subscription targets.
const (
	TargetWebhook = "webhook"
	TargetLog     = "log"
)

// Subscription is a user-configured subscription for delivering
// notifications of some events to a target.
type Subscription struct {
	// FormID limits the subscription to one form. Empty matches all forms.
	FormID string `json:"form_id,omitempty"`

	Events []workflow.Event `json:"events"`
	Target string           `json:"target"`

	// URL and Header are used by webhook targets.
	URL    string            `json:"url,omitempty"`
	Header map[string]string `json:"header,omitempty"`
}

var (
	ErrEmptySubscription = errors.New("empty subscription")
	ErrMissingEvent      = errors.New("missing event type")
	ErrMissingURL        = errors.New("missing webhook url")
)

func (s *Subscription) Validate() error {
	if s == nil {
		return ErrEmptySubscription
	}
	if len(s.Events) < 1 {
		return ErrMissingEvent
	}
	for _, ev := range s.Events {
		if !ev.Valid() {
			return fmt.Errorf("invalid event type: %s", ev)
		}
	}
	switch s.Target {
	case TargetWebhook:
		if s.URL == "" {
			return ErrMissingURL
		}
	case TargetLog:
	default:
		return fmt.Errorf("invalid target: %q", s.Target)
	}
	return nil
}

// Matches reports whether s subscribes to ev for formID.
func (s *Subscription) Matches(formID string, ev workflow.Event) bool {
	if s.FormID != "" && s.FormID != formID {
		return false
	}
	for _, sev := range s.Events {
		if sev == ev {
			return true
		}
	}
	return false
}

// ReadSubscriptionStorage describes storage backends that can retrieve and query subscriptions.
type ReadSubscriptionStorage interface {
	// RetrieveSubscriptions returns the named subscriptions.
	// Subscriptions not found are missing from the returned map.
	RetrieveSubscriptions(ctx context.Context, names []string) (map[string]*Subscription, error)

	// RetrieveSubscriptionsByEvent returns the subscriptions matching
	// ev for formID keyed by name.
	RetrieveSubscriptionsByEvent(ctx context.Context, formID string, ev workflow.Event) (map[string]*Subscription, error)
}

// SubscriptionStorage describes storage backends that can also write and delete subscriptions.
type SubscriptionStorage interface {
	ReadSubscriptionStorage
	StoreSubscription(ctx context.Context, name string, s *Subscription) error
	DeleteSubscription(ctx context.Context, name string) error
}
