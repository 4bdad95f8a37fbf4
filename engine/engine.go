// Package engine implements the formflow submission and approval workflow engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/utils/uuid"
	"github.com/formflow/formflow/workflow"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var ErrNoSuchForm = errors.New("no such form")

func NewErrNoSuchForm(id string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchForm, id)
}

// SchemaProvider retrieves form schemas and workflow templates.
type SchemaProvider interface {
	// RetrieveFormSchema returns nil with no error if the form does not exist.
	RetrieveFormSchema(ctx context.Context, formID string) (*form.Schema, error)

	// RetrieveWorkflowTemplate returns nil with no error if the form has no workflow.
	RetrieveWorkflowTemplate(ctx context.Context, formID string) (*workflow.Template, error)
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine validates submissions and moves them through their approval workflow.
type Engine struct {
	schemas    SchemaProvider
	storage    storage.AllStorage
	notifier   Notifier
	aggregator workflow.ApprovalAggregator
	scheduler  Scheduler
	clock      Clock

	logger  log.Logger
	ider    uuid.IDer
	metrics *Metrics

	// outstanding notification dispatches
	notifyWG sync.WaitGroup
}

// Options configure the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithNotifier sets the notifier for workflow events.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithScheduler sets the scheduler used for in-process auto-advance timers.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithAggregator sets the approval aggregator.
// The default completes a step on its first approval.
func WithAggregator(a workflow.ApprovalAggregator) Option {
	return func(e *Engine) {
		e.aggregator = a
	}
}

// WithIDer sets the ID generator for submissions, instances and history.
func WithIDer(ider uuid.IDer) Option {
	return func(e *Engine) {
		e.ider = ider
	}
}

// WithMetrics turns on metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates a new engine with default configurations.
func New(schemas SchemaProvider, storage storage.AllStorage, opts ...Option) *Engine {
	engine := &Engine{
		schemas:    schemas,
		storage:    storage,
		notifier:   NopNotifier{},
		aggregator: workflow.SingleApproval{},
		scheduler:  NopScheduler{},
		clock:      realClock{},
		logger:     log.NopLogger,
		ider:       uuid.NewUUID(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func logAndError(err error, logger log.Logger, msg string) error {
	logger.Info(
		logkeys.Message, msg,
		logkeys.Error, err,
	)
	return fmt.Errorf("%s: %w", msg, err)
}

// SubmitRequest is a form submission.
type SubmitRequest struct {
	FormID      string
	SubmittedBy string
	Data        map[string]interface{}
}

// Submit validates and stores a submission and starts its workflow.
// Validation failures are returned as form.Errors with a nil error and
// a nil submission. Creating the submission, creating the instance and
// its first advance are a single atomic store.
func (e *Engine) Submit(ctx context.Context, req *SubmitRequest) (*workflow.Submission, form.Errors, error) {
	logger := ctxlog.Logger(ctx, e.logger).With(logkeys.FormID, req.FormID)

	schema, err := e.schemas.RetrieveFormSchema(ctx, req.FormID)
	if err != nil {
		return nil, nil, logAndError(err, logger, "retrieving form schema")
	} else if schema == nil {
		return nil, nil, NewErrNoSuchForm(req.FormID)
	}

	data, verrs := form.Resolve(schema, req.Data)
	if len(verrs) > 0 {
		e.metrics.submission(false)
		logger.Debug(
			logkeys.Message, "submission rejected",
			logkeys.GenericCount, len(verrs),
		)
		return nil, verrs, nil
	}
	e.metrics.submission(true)

	now := e.clock.Now()
	sub := &workflow.Submission{
		ID:          e.ider.ID(),
		FormID:      req.FormID,
		SubmittedBy: req.SubmittedBy,
		SubmittedAt: now,
		Data:        data,
		Status:      workflow.StatusSubmitted,
	}
	logger = logger.With(logkeys.SubmissionID, sub.ID)

	tmpl, err := e.schemas.RetrieveWorkflowTemplate(ctx, req.FormID)
	if err != nil {
		return nil, nil, logAndError(err, logger, "retrieving workflow template")
	}

	c := &storage.Creation{Submission: sub}
	var notes []*Notification
	if tmpl != nil {
		c.Instance, c.History, notes = e.start(sub, tmpl, now)
		logger = logger.With(
			logkeys.InstanceID, c.Instance.ID,
			logkeys.TemplateName, tmpl.Name,
		)
	}

	if err = e.storage.CreateSubmission(ctx, c); err != nil {
		return nil, nil, logAndError(err, logger, "storing submission")
	}

	if c.Instance != nil {
		if c.Instance.State() == workflow.Stalled {
			logger.Info(logkeys.Message, "no eligible step: instance stalled")
		} else {
			logger.Debug(
				logkeys.Message, "started workflow",
				logkeys.StepName, c.Instance.CurrentStep,
			)
		}
		e.dispatch(ctx, notes)
		e.schedule(c.Instance)
	} else {
		logger.Debug(logkeys.Message, "accepted submission")
	}
	return sub, nil, nil
}

// start creates a started instance for sub, updating sub in place.
// Nothing is persisted.
func (e *Engine) start(sub *workflow.Submission, tmpl *workflow.Template, now time.Time) (*workflow.Instance, *workflow.HistoryEntry, []*Notification) {
	inst := &workflow.Instance{
		ID:           e.ider.ID(),
		SubmissionID: sub.ID,
		FormID:       sub.FormID,
		Template: workflow.Template{
			Name:   tmpl.Name,
			FormID: tmpl.FormID,
			Steps:  append([]workflow.Step(nil), tmpl.Steps...),
		},
		Active:       true,
		StartedAt:    now,
		LastActivity: now,
		Version:      1,
	}
	sub.InstanceID = inst.ID
	sub.Status = workflow.StatusPending

	var notes []*Notification
	if first := workflow.FirstEligibleStep(&inst.Template, sub.Data); first != nil {
		inst.CurrentStep = first.Name
		sub.CurrentStep = first.Name
		sub.AssignedTo = first.Assignment
		notes = append(notes, newNotification(StepAssigned, inst, sub, now))
	}

	h := &workflow.HistoryEntry{
		ID:         e.ider.ID(),
		InstanceID: inst.ID,
		Step:       inst.CurrentStep,
		Action:     workflow.Start,
		Actor:      sub.SubmittedBy,
		Timestamp:  now,
		DataAfter:  inst.Snapshot(sub.Status),
	}
	return inst, h, notes
}

// RetrieveSubmission returns a stored submission.
func (e *Engine) RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error) {
	return e.storage.RetrieveSubmission(ctx, id)
}

// RetrieveInstance returns a stored instance.
func (e *Engine) RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error) {
	return e.storage.RetrieveInstance(ctx, id)
}

// RetrieveHistory returns the history of an instance.
func (e *Engine) RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	return e.storage.RetrieveHistory(ctx, instanceID)
}

// Wait blocks until outstanding notification dispatches finish.
func (e *Engine) Wait() {
	e.notifyWG.Wait()
}
