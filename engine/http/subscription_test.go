package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/engine/storage/inmem"
	"github.com/formflow/formflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
)

func TestSubscriptionHandlers(t *testing.T) {
	mux := flow.New()
	HandleSubscriptions("/v1", mux, log.NopLogger, inmem.New())
	srv := httptest.NewServer(mux)
	defer srv.Close()
	url := srv.URL + "/v1/subscription/finance-hook"

	if have, want := do(t, "GET", url, nil, nil), http.StatusNotFound; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	invalid := map[string]interface{}{"events": []string{"completed"}, "target": "webhook"}
	if have, want := do(t, "PUT", url, invalid, nil), http.StatusBadRequest; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	subscr := &storage.Subscription{
		FormID: "expense",
		Events: []workflow.Event{workflow.EventRejected},
		Target: storage.TargetWebhook,
		URL:    "http://127.0.0.1/hook",
	}
	if have, want := do(t, "PUT", url, subscr, nil), http.StatusNoContent; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}

	stored := new(storage.Subscription)
	if have, want := do(t, "GET", url, nil, stored), http.StatusOK; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := stored.URL, subscr.URL; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if !stored.Matches("expense", workflow.EventRejected) {
		t.Error("stored subscription does not match")
	}

	if have, want := do(t, "DELETE", url, nil, nil), http.StatusNoContent; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := do(t, "GET", url, nil, nil), http.StatusNotFound; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
