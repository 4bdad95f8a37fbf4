// Package notify implements workflow notification delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/formflow/formflow/engine"
	"github.com/formflow/formflow/log/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// Func adapts a single delivery function to an engine.Notifier.
// Every notification event is delivered through f.
type Func func(context.Context, *engine.Notification) error

func (f Func) NotifyStepAssigned(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

func (f Func) NotifyCompleted(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

func (f Func) NotifyDelegated(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

func (f Func) NotifyRejected(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

func (f Func) NotifyInfoRequested(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

func (f Func) NotifyReminder(ctx context.Context, n *engine.Notification) error {
	return f(ctx, n)
}

// Logger logs notifications.
type Logger struct {
	logger log.Logger
}

// NewLogger creates a new notification logger.
func NewLogger(logger log.Logger) *Logger {
	return &Logger{logger: logger}
}

// Send logs n and never fails.
func (l *Logger) Send(ctx context.Context, n *engine.Notification) error {
	logs := []interface{}{
		logkeys.Message, "notification",
		logkeys.Notification, string(n.Event),
		logkeys.InstanceID, n.InstanceID,
		logkeys.FormID, n.FormID,
	}
	if n.Step != "" {
		logs = append(logs, logkeys.StepName, n.Step)
	}
	if n.Actor != "" {
		logs = append(logs, logkeys.Actor, n.Actor)
	}
	ctxlog.Logger(ctx, l.logger).Info(logs...)
	return nil
}

// Dumper is notifier middleware that writes each notification as a
// line of JSON to an output writer before passing it on.
type Dumper struct {
	next   engine.Notifier
	mu     sync.Mutex
	output io.Writer
}

// NewDumper creates a new notification dumper.
// If next is nil notifications are only dumped.
func NewDumper(next engine.Notifier, output io.Writer) *Dumper {
	if next == nil {
		next = engine.NopNotifier{}
	}
	return &Dumper{next: next, output: output}
}

// Send dumps n and delivers it to the next notifier.
func (d *Dumper) Send(ctx context.Context, n *engine.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	_, err = d.output.Write(append(raw, '\n'))
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return engine.Notify(ctx, d.next, n)
}

// Multi fans notifications out to several notifiers.
type Multi []engine.Notifier

// Send delivers n to every notifier.
// A failing notifier does not stop delivery to the others.
func (m Multi) Send(ctx context.Context, n *engine.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := engine.Notify(ctx, notifier, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
