package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/workflow"

	"github.com/micromdm/nanolib/log"
)

const DefaultDuration = time.Minute * 1

// Advancer auto-advances and reminds on behalf of the worker.
type Advancer interface {
	AutoAdvance(ctx context.Context, instanceID, stepName string) error
	Remind(ctx context.Context, inst *workflow.Instance) error
}

// Worker polls storage backends for timed events on an interval.
// It auto-advances steps whose timeout has elapsed (including those
// whose in-process timers were lost to a restart) and sends reminders
// for idle steps.
type Worker struct {
	advancer Advancer
	storage  storage.WorkerStorage
	logger   log.Logger
	clock    Clock
	metrics  *Metrics

	// duration is the interval at which the worker will wake up to
	// continue polling the storage backend for data to take action on.
	duration time.Duration

	// reminder is how long a step may go without activity before its
	// assignee is reminded. Reminders repeat every reminder interval.
	reminder time.Duration

	lastRun time.Time
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerDuration configures the polling interval for the worker.
func WithWorkerDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.duration = d
	}
}

// WithWorkerReminder turns on reminders for steps idle for d.
func WithWorkerReminder(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.reminder = d
	}
}

// WithWorkerClock overrides the wall clock.
func WithWorkerClock(c Clock) WorkerOption {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithWorkerMetrics reports instance gauges after each run.
func WithWorkerMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(advancer Advancer, storage storage.WorkerStorage, opts ...WorkerOption) *Worker {
	w := &Worker{
		advancer: advancer,
		storage:  storage,
		logger:   log.NopLogger,
		clock:    realClock{},
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce runs the processes of the worker and logs errors.
// It is not safe for concurrent use.
func (w *Worker) RunOnce(ctx context.Context) error {
	insts, err := w.storage.RetrieveActiveInstances(ctx)
	if err != nil {
		return logAndError(err, w.logger, "retrieving active instances")
	}
	now := w.clock.Now()
	var stalled int
	for _, inst := range insts {
		switch inst.State() {
		case workflow.Stalled:
			stalled++
			w.logger.Debug(
				logkeys.Message, "instance stalled",
				logkeys.InstanceID, inst.ID,
			)
		case workflow.Active:
			if err = w.process(ctx, inst, now); err != nil {
				w.logger.Info(
					logkeys.InstanceID, inst.ID,
					logkeys.StepName, inst.CurrentStep,
					logkeys.Error, err,
				)
			}
		}
	}
	w.metrics.instances(len(insts), stalled)
	w.lastRun = now
	return nil
}

func (w *Worker) process(ctx context.Context, inst *workflow.Instance, now time.Time) error {
	step := inst.Step()
	if step == nil {
		return fmt.Errorf("%w: %s", workflow.ErrUnknownStepName, inst.CurrentStep)
	}
	idle := now.Sub(inst.LastActivity)
	if step.AutoAdvanceAfter > 0 && idle >= time.Duration(step.AutoAdvanceAfter) {
		if err := w.advancer.AutoAdvance(ctx, inst.ID, step.Name); err != nil {
			return fmt.Errorf("auto-advance: %w", err)
		}
		return nil
	}
	if w.dueReminder(idle, now.Sub(w.lastRun)) {
		if err := w.advancer.Remind(ctx, inst); err != nil {
			return fmt.Errorf("reminder: %w", err)
		}
		w.logger.Debug(
			logkeys.Message, "sent reminder",
			logkeys.InstanceID, inst.ID,
			logkeys.StepName, step.Name,
		)
	}
	return nil
}

// dueReminder reports whether idle crossed a multiple of the reminder
// interval since the previous run, which was sinceLast ago.
func (w *Worker) dueReminder(idle, sinceLast time.Duration) bool {
	if w.reminder <= 0 || idle < w.reminder {
		return false
	}
	if w.lastRun.IsZero() {
		return true
	}
	prevIdle := idle - sinceLast
	if prevIdle < 0 {
		prevIdle = 0
	}
	return idle/w.reminder > prevIdle/w.reminder
}

// Run starts and runs the worker forever on an interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(logkeys.Message, "starting worker", "duration", w.duration)

	ticker := time.NewTicker(w.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
