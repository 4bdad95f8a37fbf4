package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/formflow/formflow/engine"
	"github.com/formflow/formflow/workflow"

	"github.com/micromdm/nanolib/log"
)

func testNotification(ev engine.Event) *engine.Notification {
	return &engine.Notification{
		Event:        ev,
		InstanceID:   "inst1",
		SubmissionID: "sub1",
		FormID:       "expense",
		Timestamp:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Step:         "review",
		Assignment:   workflow.Assignment{Group: "managers"},
		SubmittedBy:  "alice",
	}
}

type recorder struct {
	mu    sync.Mutex
	notes []*engine.Notification
}

func (r *recorder) send(_ context.Context, n *engine.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func TestWebhook(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
		got    engine.Notification
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Header.Get("X-Secret") != "s3cr3t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		events = append(events, r.Header.Get("X-Formflow-Event"))
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithClient(srv.Client()), WithHeader("X-Secret", "s3cr3t"))
	n := testNotification(engine.StepAssigned)
	if err := engine.Notify(context.Background(), Func(hook.Send), n); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if have, want := strings.Join(events, ","), "step_assigned"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := got.InstanceID, n.InstanceID; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := got.Assignment.Group, "managers"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithClient(srv.Client()))
	if err := hook.Send(context.Background(), testNotification(engine.Completed)); err == nil {
		t.Error("expected error")
	}
}

func TestDumper(t *testing.T) {
	buf := new(bytes.Buffer)
	rec := new(recorder)
	d := NewDumper(Func(rec.send), buf)

	for _, ev := range []engine.Event{engine.StepAssigned, engine.Reminder} {
		if err := engine.Notify(context.Background(), Func(d.Send), testNotification(ev)); err != nil {
			t.Fatal(err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if have, want := len(lines), 2; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	var n engine.Notification
	if err := json.Unmarshal([]byte(lines[1]), &n); err != nil {
		t.Fatal(err)
	}
	if have, want := n.Event, engine.Reminder; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := len(rec.notes), 2; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestMulti(t *testing.T) {
	errBoom := errors.New("boom")
	rec := new(recorder)
	failing := Func(func(context.Context, *engine.Notification) error { return errBoom })
	d := NewDumper(Func(rec.send), new(bytes.Buffer))
	m := Multi{failing, Func(d.Send), Func(NewLogger(log.NopLogger).Send)}

	err := m.Send(context.Background(), testNotification(engine.Rejected))
	if !errors.Is(err, errBoom) {
		t.Errorf("have: %v, want: %v", err, errBoom)
	}
	// later notifiers still receive the notification
	if have, want := len(rec.notes), 1; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
