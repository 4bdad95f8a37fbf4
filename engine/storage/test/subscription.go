package test

import (
	"context"
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/workflow"

	"github.com/google/uuid"
)

// TestSubscriptionStorage tests subscription storage.
// Names and form IDs are unique per run so persistent backends may be reused.
func TestSubscriptionStorage(t *testing.T, store storage.SubscriptionStorage) {
	ctx := context.Background()
	formID := "form-" + uuid.NewString()

	hook := &storage.Subscription{
		FormID: formID,
		Events: []workflow.Event{workflow.EventCompleted, workflow.EventRejected},
		Target: storage.TargetWebhook,
		URL:    "http://127.0.0.1/hook",
		Header: map[string]string{"X-Secret": "s3cret"},
	}
	logAll := &storage.Subscription{
		Events: []workflow.Event{workflow.EventCompleted},
		Target: storage.TargetLog,
	}
	other := &storage.Subscription{
		FormID: "other-" + uuid.NewString(),
		Events: []workflow.Event{workflow.EventCompleted},
		Target: storage.TargetLog,
	}
	hookName := "hook-" + uuid.NewString()
	logName := "log-" + uuid.NewString()
	otherName := "other-" + uuid.NewString()

	for name, subscr := range map[string]*storage.Subscription{hookName: hook, logName: logAll, otherName: other} {
		if err := store.StoreSubscription(ctx, name, subscr); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("invalid", func(t *testing.T) {
		err := store.StoreSubscription(ctx, "invalid-"+uuid.NewString(), &storage.Subscription{
			Events: []workflow.Event{"bogus"},
			Target: storage.TargetLog,
		})
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("retrieve-by-name", func(t *testing.T) {
		subscrs, err := store.RetrieveSubscriptions(ctx, []string{hookName, "missing-" + uuid.NewString()})
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(subscrs), 1; have != want {
			t.Fatalf("have: %v, want: %v", have, want)
		}
		subscr := subscrs[hookName]
		if subscr == nil {
			t.Fatal("nil subscription")
		}
		if have, want := subscr.FormID, hook.FormID; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := len(subscr.Events), 2; have != want {
			t.Fatalf("have: %v, want: %v", have, want)
		}
		if have, want := subscr.Events[1], workflow.EventRejected; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := subscr.URL, hook.URL; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
		if have, want := subscr.Header["X-Secret"], "s3cret"; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})

	t.Run("retrieve-by-event", func(t *testing.T) {
		subscrs, err := store.RetrieveSubscriptionsByEvent(ctx, formID, workflow.EventCompleted)
		if err != nil {
			t.Fatal(err)
		}
		if subscrs[hookName] == nil {
			t.Error("form subscription not matched")
		}
		if subscrs[logName] == nil {
			t.Error("all-forms subscription not matched")
		}
		if subscrs[otherName] != nil {
			t.Error("other form subscription matched")
		}

		subscrs, err = store.RetrieveSubscriptionsByEvent(ctx, formID, workflow.EventRejected)
		if err != nil {
			t.Fatal(err)
		}
		if subscrs[hookName] == nil {
			t.Error("form subscription not matched")
		}
		if subscrs[logName] != nil {
			t.Error("unsubscribed event matched")
		}
	})

	t.Run("delete", func(t *testing.T) {
		for _, name := range []string{hookName, logName, otherName} {
			if err := store.DeleteSubscription(ctx, name); err != nil {
				t.Fatal(err)
			}
		}
		subscrs, err := store.RetrieveSubscriptions(ctx, []string{hookName})
		if err != nil {
			t.Fatal(err)
		}
		if have, want := len(subscrs), 0; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})
}
