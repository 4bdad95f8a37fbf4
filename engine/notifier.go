package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/workflow"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// Event identifies the kind of a notification.
type Event = workflow.Event

const (
	StepAssigned  = workflow.EventStepAssigned
	Completed     = workflow.EventCompleted
	Delegated     = workflow.EventDelegated
	Rejected      = workflow.EventRejected
	InfoRequested = workflow.EventInfoRequested
	Reminder      = workflow.EventReminder
)

// Notification describes a workflow event for delivery to people.
type Notification struct {
	Event        Event     `json:"event"`
	InstanceID   string    `json:"instance_id"`
	SubmissionID string    `json:"submission_id"`
	FormID       string    `json:"form_id"`
	Timestamp    time.Time `json:"timestamp"`

	// Step is the current step after the transition, if any.
	Step string `json:"step,omitempty"`

	// Assignment is who may act on Step.
	Assignment workflow.Assignment `json:"assignment,omitempty"`

	// SubmittedBy is the recipient for submitter notifications.
	SubmittedBy string `json:"submitted_by,omitempty"`

	Actor   string          `json:"actor,omitempty"`
	Comment string          `json:"comment,omitempty"`
	Outcome workflow.Status `json:"outcome,omitempty"`
}

func newNotification(ev Event, inst *workflow.Instance, sub *workflow.Submission, now time.Time) *Notification {
	return &Notification{
		Event:        ev,
		InstanceID:   inst.ID,
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		Timestamp:    now,
		Step:         inst.CurrentStep,
		Assignment:   inst.CurrentAssignment(),
		SubmittedBy:  sub.SubmittedBy,
		Outcome:      inst.Outcome,
	}
}

// Notifier delivers workflow notifications.
// Delivery is fire-and-forget: errors are logged and never affect
// workflow state.
type Notifier interface {
	NotifyStepAssigned(context.Context, *Notification) error
	NotifyCompleted(context.Context, *Notification) error
	NotifyDelegated(context.Context, *Notification) error
	NotifyRejected(context.Context, *Notification) error
	NotifyInfoRequested(context.Context, *Notification) error
	NotifyReminder(context.Context, *Notification) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyStepAssigned(context.Context, *Notification) error  { return nil }
func (NopNotifier) NotifyCompleted(context.Context, *Notification) error     { return nil }
func (NopNotifier) NotifyDelegated(context.Context, *Notification) error     { return nil }
func (NopNotifier) NotifyRejected(context.Context, *Notification) error      { return nil }
func (NopNotifier) NotifyInfoRequested(context.Context, *Notification) error { return nil }
func (NopNotifier) NotifyReminder(context.Context, *Notification) error      { return nil }

// Notify calls the method of n matching the notification event.
func Notify(ctx context.Context, n Notifier, note *Notification) error {
	switch note.Event {
	case StepAssigned:
		return n.NotifyStepAssigned(ctx, note)
	case Completed:
		return n.NotifyCompleted(ctx, note)
	case Delegated:
		return n.NotifyDelegated(ctx, note)
	case Rejected:
		return n.NotifyRejected(ctx, note)
	case InfoRequested:
		return n.NotifyInfoRequested(ctx, note)
	case Reminder:
		return n.NotifyReminder(ctx, note)
	}
	return fmt.Errorf("unknown notification event: %s", note.Event)
}

// dispatch delivers notes in the background.
// The dispatch outlives ctx cancellation but keeps its values (e.g. loggers).
func (e *Engine) dispatch(ctx context.Context, notes []*Notification) {
	if len(notes) < 1 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	logger := ctxlog.Logger(ctx, e.logger)
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		for _, note := range notes {
			if err := Notify(ctx, e.notifier, note); err != nil {
				e.metrics.notificationFailed(note.Event)
				logger.Info(
					logkeys.Message, "notification failed",
					logkeys.Notification, string(note.Event),
					logkeys.InstanceID, note.InstanceID,
					logkeys.Error, err,
				)
			}
		}
	}()
}
