package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/workflow"

	"github.com/micromdm/nanolib/log/ctxlog"
)

// AutoApproveComment is recorded on system approvals after a step timeout.
const AutoApproveComment = "Auto-approved due to timeout"

// ActionRequest is an actor's action on the current step of an instance.
type ActionRequest struct {
	InstanceID string
	Action     workflow.ActionType

	// ActionName selects among several permitted actions of the same type.
	// Empty selects the first.
	ActionName string

	Actor   workflow.Identity
	Comment string

	// DelegateTo is required for delegate actions.
	DelegateTo *workflow.Assignment
}

// actor is the resolved acting party. A nil identity is the system.
type actor struct {
	identity workflow.Identity
}

func (a actor) system() bool { return a.identity == nil }

func (a actor) id() string {
	if a.identity == nil {
		return ""
	}
	return a.identity.ID()
}

// computed is the outcome of a pure transition computation.
type computed struct {
	transition *storage.Transition
	notes      []*Notification
}

func findAction(step *workflow.Step, t workflow.ActionType, name string) *workflow.Action {
	for i := range step.Actions {
		a := &step.Actions[i]
		if a.Type == t && (name == "" || a.Name == name) {
			return a
		}
	}
	return nil
}

// newHistory records a transition from inst to next.
func (e *Engine) newHistory(inst, next *workflow.Instance, before, after workflow.Status, action workflow.ActionType, name string, a actor, comment string, now time.Time) *workflow.HistoryEntry {
	return &workflow.HistoryEntry{
		ID:         e.ider.ID(),
		InstanceID: inst.ID,
		Step:       inst.CurrentStep,
		Action:     action,
		ActionName: name,
		Actor:      a.id(),
		Timestamp:  now,
		Comment:    comment,
		DataBefore: inst.Snapshot(before),
		DataAfter:  next.Snapshot(after),
	}
}

// terminate ends next with outcome.
func terminate(next *workflow.Instance, sub *workflow.Submission, outcome workflow.Status, now time.Time) {
	next.Active = false
	next.CurrentStep = ""
	next.Assignment = nil
	next.Outcome = outcome
	completed := now
	next.CompletedAt = &completed
	sub.Status = outcome
	sub.CurrentStep = ""
	sub.AssignedTo = workflow.Assignment{}
}

// moveTo makes step current on next.
func moveTo(next *workflow.Instance, sub *workflow.Submission, step *workflow.Step) {
	next.CurrentStep = step.Name
	next.Assignment = nil
	sub.Status = workflow.StatusPending
	sub.CurrentStep = step.Name
	sub.AssignedTo = step.Assignment
}

// compute determines the transition for an action without side effects.
// Errors leave inst and sub untouched.
func (e *Engine) compute(inst *workflow.Instance, sub *workflow.Submission, history []*workflow.HistoryEntry, req *ActionRequest, a actor, now time.Time) (*computed, error) {
	if inst.State() != workflow.Active {
		return nil, workflow.ErrNoCurrentStep
	}
	step := inst.Step()
	if step == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownStepName, inst.CurrentStep)
	}
	if !a.system() && !workflow.Authorized(inst.CurrentAssignment(), a.identity) {
		return nil, workflow.ErrUnauthorized
	}

	action := findAction(step, req.Action, req.ActionName)
	if action == nil && a.system() && req.Action == workflow.Approve {
		// auto-advance approves even steps without a permitted approve action
		action = &workflow.Action{Type: workflow.Approve}
	}
	if action == nil {
		return nil, fmt.Errorf("%w: %s not permitted at step %s", workflow.ErrInvalidAction, req.Action, step.Name)
	}
	if action.RequiresComment && strings.TrimSpace(req.Comment) == "" {
		return nil, workflow.ErrCommentRequired
	}

	next := *inst
	next.Version++
	next.LastActivity = now
	if inst.Assignment != nil {
		assignment := *inst.Assignment
		next.Assignment = &assignment
	}
	nextSub := *sub

	var notes []*Notification
	switch action.Type {
	case workflow.Delegate:
		if req.DelegateTo == nil || req.DelegateTo.IsZero() {
			return nil, fmt.Errorf("%w: delegate requires a delegate", workflow.ErrInvalidAction)
		}
		if err := req.DelegateTo.Check(); err != nil {
			return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidAction, err)
		}
		delegate := *req.DelegateTo
		next.Assignment = &delegate
		nextSub.AssignedTo = delegate
		nextSub.Status = workflow.StatusPending
		notes = append(notes, newNotification(Delegated, &next, &nextSub, now))

	case workflow.Approve:
		nextSub.Status = workflow.StatusPending
		if !a.system() && !e.aggregator.Complete(step, history, a.id()) {
			// recorded, but the step awaits further approvals
			break
		}
		nextStep, err := workflow.ResolveNextStep(inst, action, sub.Data)
		if err != nil {
			return nil, err
		}
		if nextStep == nil {
			terminate(&next, &nextSub, workflow.StatusApproved, now)
			notes = append(notes, newNotification(Completed, &next, &nextSub, now))
		} else {
			moveTo(&next, &nextSub, nextStep)
			notes = append(notes, newNotification(StepAssigned, &next, &nextSub, now))
		}

	case workflow.Reject:
		terminate(&next, &nextSub, workflow.StatusRejected, now)
		notes = append(notes,
			newNotification(Rejected, &next, &nextSub, now),
			newNotification(Completed, &next, &nextSub, now),
		)

	case workflow.RequestInfo:
		nextSub.Status = workflow.StatusPendingInfo
		notes = append(notes, newNotification(InfoRequested, &next, &nextSub, now))

	default:
		return nil, fmt.Errorf("%w: %s", workflow.ErrInvalidAction, action.Type)
	}

	for _, n := range notes {
		n.Actor = a.id()
		n.Comment = req.Comment
	}

	return &computed{
		transition: &storage.Transition{
			Instance:   &next,
			Submission: &nextSub,
			History:    e.newHistory(inst, &next, sub.Status, nextSub.Status, action.Type, action.Name, a, req.Comment, now),
		},
		notes: notes,
	}, nil
}

// load retrieves an instance with its submission and history.
func (e *Engine) load(ctx context.Context, instanceID string) (*workflow.Instance, *workflow.Submission, []*workflow.HistoryEntry, error) {
	inst, err := e.storage.RetrieveInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("retrieving instance: %w", err)
	}
	sub, err := e.storage.RetrieveSubmission(ctx, inst.SubmissionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("retrieving submission: %w", err)
	}
	history, err := e.storage.RetrieveHistory(ctx, instanceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("retrieving history: %w", err)
	}
	return inst, sub, history, nil
}

// commit stores c and then runs its side effects.
func (e *Engine) commit(ctx context.Context, c *computed) error {
	if err := e.storage.StoreTransition(ctx, c.transition); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.metrics.conflict()
		}
		return err
	}
	e.metrics.transition(c.transition.History.Action)
	e.dispatch(ctx, c.notes)
	e.schedule(c.transition.Instance)
	return nil
}

// schedule arms the auto-advance timer for the current step of inst.
func (e *Engine) schedule(inst *workflow.Instance) {
	step := inst.Step()
	if !inst.Active || step == nil || step.AutoAdvanceAfter <= 0 {
		return
	}
	id, name := inst.ID, step.Name
	at := inst.LastActivity.Add(time.Duration(step.AutoAdvanceAfter))
	e.scheduler.ScheduleOnce(id, name, at, func() {
		// the step identity is re-checked when firing
		e.AutoAdvance(context.Background(), id, name)
	})
}

// PerformAction applies an actor's action to the current step of an instance.
// On any error nothing is stored. storage.ErrConflict indicates a
// concurrent modification: the caller may retry.
func (e *Engine) PerformAction(ctx context.Context, req *ActionRequest) (*workflow.Instance, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, req.InstanceID,
		logkeys.Action, string(req.Action),
	)
	if req.Actor == nil {
		return nil, workflow.ErrUnauthorized
	}
	logger = logger.With(logkeys.Actor, req.Actor.ID())

	inst, sub, history, err := e.load(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	c, err := e.compute(inst, sub, history, req, actor{identity: req.Actor}, e.clock.Now())
	if err != nil {
		logger.Debug(logkeys.Message, "action refused", logkeys.Error, err)
		return nil, err
	}
	if err = e.commit(ctx, c); err != nil {
		return nil, logAndError(err, logger, "storing transition")
	}
	logger.Debug(
		logkeys.Message, "performed action",
		logkeys.StepName, c.transition.Instance.CurrentStep,
	)
	return c.transition.Instance, nil
}

// AutoAdvance approves stepName on behalf of the system if it is still
// the current step and its auto-advance timeout has elapsed since the
// last activity. Otherwise it does nothing, so it is safe to call
// repeatedly for the same step.
func (e *Engine) AutoAdvance(ctx context.Context, instanceID, stepName string) error {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, instanceID,
		logkeys.StepName, stepName,
	)
	// a single reload and retry on conflict
	for attempt := 0; attempt < 2; attempt++ {
		inst, sub, history, err := e.load(ctx, instanceID)
		if err != nil {
			return logAndError(err, logger, "loading instance")
		}
		if inst.State() != workflow.Active || inst.CurrentStep != stepName {
			return nil
		}
		step := inst.Step()
		if step == nil || step.AutoAdvanceAfter <= 0 {
			return nil
		}
		now := e.clock.Now()
		if now.Sub(inst.LastActivity) < time.Duration(step.AutoAdvanceAfter) {
			return nil
		}
		req := &ActionRequest{
			InstanceID: instanceID,
			Action:     workflow.Approve,
			Comment:    AutoApproveComment,
		}
		c, err := e.compute(inst, sub, history, req, actor{}, now)
		if err != nil {
			return logAndError(err, logger, "computing auto-advance")
		}
		err = e.commit(ctx, c)
		if errors.Is(err, storage.ErrConflict) {
			continue
		} else if err != nil {
			return logAndError(err, logger, "storing auto-advance")
		}
		e.metrics.autoAdvanced()
		logger.Debug(logkeys.Message, "auto-advanced step")
		return nil
	}
	logger.Info(logkeys.Message, "auto-advance abandoned after conflict")
	return nil
}

// Reassign moves an active (typically stalled) instance to stepName.
// Only administrators may reassign.
func (e *Engine) Reassign(ctx context.Context, instanceID, stepName string, admin workflow.Identity, comment string) (*workflow.Instance, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(
		logkeys.InstanceID, instanceID,
		logkeys.StepName, stepName,
		logkeys.Action, string(workflow.Reassign),
	)
	if admin == nil || !admin.IsAdmin() {
		return nil, workflow.ErrUnauthorized
	}
	logger = logger.With(logkeys.Actor, admin.ID())

	inst, sub, _, err := e.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.State() == workflow.Terminated {
		return nil, fmt.Errorf("%w: instance terminated", workflow.ErrInvalidAction)
	}
	step := inst.Template.Step(stepName)
	if step == nil {
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownStepName, stepName)
	}

	now := e.clock.Now()
	next := *inst
	next.Version++
	next.LastActivity = now
	nextSub := *sub
	moveTo(&next, &nextSub, step)

	c := &computed{
		transition: &storage.Transition{
			Instance:   &next,
			Submission: &nextSub,
			History:    e.newHistory(inst, &next, sub.Status, nextSub.Status, workflow.Reassign, "", actor{identity: admin}, comment, now),
		},
		notes: []*Notification{newNotification(StepAssigned, &next, &nextSub, now)},
	}
	c.notes[0].Actor = admin.ID()
	c.notes[0].Comment = comment
	if err = e.commit(ctx, c); err != nil {
		return nil, logAndError(err, logger, "storing reassignment")
	}
	logger.Debug(logkeys.Message, "reassigned instance")
	return &next, nil
}

// Remind notifies the assignee of the current step of inst.
func (e *Engine) Remind(ctx context.Context, inst *workflow.Instance) error {
	if inst.State() != workflow.Active {
		return nil
	}
	sub, err := e.storage.RetrieveSubmission(ctx, inst.SubmissionID)
	if err != nil {
		return fmt.Errorf("retrieving submission: %w", err)
	}
	e.dispatch(ctx, []*Notification{newNotification(Reminder, inst, sub, e.clock.Now())})
	return nil
}

// Pending returns active instances the identity may act on.
func (e *Engine) Pending(ctx context.Context, id workflow.Identity) ([]*workflow.Instance, error) {
	active, err := e.storage.RetrieveActiveInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieving active instances: %w", err)
	}
	var pending []*workflow.Instance
	for _, inst := range active {
		if inst.State() == workflow.Active && workflow.Authorized(inst.CurrentAssignment(), id) {
			pending = append(pending, inst)
		}
	}
	return pending, nil
}
