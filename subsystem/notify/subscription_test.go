package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/formflow/formflow/engine"
	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/inmem"
	"github.com/formflow/formflow/workflow"
)

func TestSubscriptions(t *testing.T) {
	var mu sync.Mutex
	var secrets, events []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		secrets = append(secrets, r.Header.Get("X-Secret"))
		events = append(events, r.Header.Get("X-Formflow-Event"))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := inmem.New()
	for name, subscr := range map[string]*storage.Subscription{
		"expense-rejections": {
			FormID: "expense",
			Events: []workflow.Event{workflow.EventRejected},
			Target: storage.TargetWebhook,
			URL:    srv.URL,
			Header: map[string]string{"X-Secret": "s3cret"},
		},
		"leave-rejections": {
			FormID: "leave",
			Events: []workflow.Event{workflow.EventRejected},
			Target: storage.TargetWebhook,
			URL:    srv.URL,
		},
		"audit": {
			Events: []workflow.Event{workflow.EventRejected, workflow.EventCompleted},
			Target: storage.TargetLog,
		},
	} {
		if err := store.StoreSubscription(ctx, name, subscr); err != nil {
			t.Fatal(err)
		}
	}

	s := NewSubscriptions(store)
	if err := engine.Notify(ctx, Func(s.Send), testNotification(engine.Rejected)); err != nil {
		t.Fatal(err)
	}
	// only the log target subscribes to completions
	if err := engine.Notify(ctx, Func(s.Send), testNotification(engine.Completed)); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if have, want := len(events), 1; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := events[0], string(engine.Rejected); have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := secrets[0], "s3cret"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestSubscriptionsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := inmem.New()
	err := store.StoreSubscription(ctx, "broken", &storage.Subscription{
		Events: []workflow.Event{workflow.EventStepAssigned},
		Target: storage.TargetWebhook,
		URL:    srv.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err = NewSubscriptions(store).Send(ctx, testNotification(engine.StepAssigned)); err == nil {
		t.Error("expected error")
	}
}
