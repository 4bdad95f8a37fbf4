package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/formflow/formflow/subsystem/schema/storage/inmem"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
)

func newMux(store *inmem.InMem) *flow.Mux {
	logger := log.NopLogger
	mux := flow.New()
	mux.Handle("/v1/forms", ListFormsHandler(store, logger), "GET")
	mux.Handle("/v1/form/:id", GetSchemaHandler(store, logger), "GET")
	mux.Handle("/v1/form/:id", PutSchemaHandler(store, logger), "PUT")
	mux.Handle("/v1/form/:id", DeleteSchemaHandler(store, logger), "DELETE")
	mux.Handle("/v1/form/:id/workflow", GetTemplateHandler(store, logger), "GET")
	mux.Handle("/v1/form/:id/workflow", PutTemplateHandler(store, logger), "PUT")
	mux.Handle("/v1/form/:id/workflow", DeleteTemplateHandler(store, logger), "DELETE")
	return mux
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestSchemaHandlers(t *testing.T) {
	store := inmem.New()
	mux := newMux(store)

	for _, test := range []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"get_missing", "GET", "/v1/form/expense", "", http.StatusNotFound},
		{"put_bad_json", "PUT", "/v1/form/expense", "{", http.StatusBadRequest},
		{"put_mismatch", "PUT", "/v1/form/expense", `{"id": "other", "fields": [{"name": "a", "type": "text"}]}`, http.StatusBadRequest},
		{"put_bad_type", "PUT", "/v1/form/expense", `{"fields": [{"name": "a", "type": "bogus"}]}`, http.StatusBadRequest},
		{"put", "PUT", "/v1/form/expense", `{"fields": [{"name": "amount", "type": "number"}]}`, http.StatusNoContent},
		{"get", "GET", "/v1/form/expense", "", http.StatusOK},
		{"get_no_workflow", "GET", "/v1/form/expense/workflow", "", http.StatusNotFound},
		{"put_bad_workflow", "PUT", "/v1/form/expense/workflow", `{"steps": [{"name": "a", "order": 1, "actions": [{"action_type": "explode"}]}]}`, http.StatusBadRequest},
		{"put_workflow", "PUT", "/v1/form/expense/workflow", `{"name": "wf", "steps": [{"name": "a", "order": 1, "actions": [{"action_type": "approve"}]}]}`, http.StatusNoContent},
		{"get_workflow", "GET", "/v1/form/expense/workflow", "", http.StatusOK},
		{"delete_workflow", "DELETE", "/v1/form/expense/workflow", "", http.StatusNoContent},
		{"delete_workflow_again", "DELETE", "/v1/form/expense/workflow", "", http.StatusNotFound},
	} {
		t.Run(test.name, func(t *testing.T) {
			w := serve(mux, test.method, test.path, test.body)
			if have, want := w.Code, test.code; have != want {
				t.Errorf("have: %v, want: %v: %s", have, want, w.Body.String())
			}
		})
	}

	schema, err := store.RetrieveFormSchema(context.Background(), "expense")
	if err != nil {
		t.Fatal(err)
	}
	if schema == nil || schema.ID != "expense" {
		t.Errorf("unexpected schema: %v", schema)
	}

	w := serve(mux, "GET", "/v1/forms", "")
	var ids []string
	if err = json.NewDecoder(w.Body).Decode(&ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "expense" {
		t.Errorf("have: %v, want: %v", ids, []string{"expense"})
	}

	if have, want := serve(mux, "DELETE", "/v1/form/expense", "").Code, http.StatusNoContent; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
