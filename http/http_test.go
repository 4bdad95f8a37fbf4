package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echo(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Write(b)
}

func TestDumpHandler(t *testing.T) {
	buf := new(bytes.Buffer)
	h := DumpHandler(http.HandlerFunc(echo), buf)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/form/expense/submissions", strings.NewReader(`{"a":1}`)))

	if have, want := w.Body.String(), `{"a":1}`; have != want {
		t.Errorf("body not replaced: have: %v, want: %v", have, want)
	}
	if have, want := buf.String(), "POST /v1/form/expense/submissions\n{\"a\":1}\n"; have != want {
		t.Errorf("have: %q, want: %q", have, want)
	}
}

func TestLimitBodyHandler(t *testing.T) {
	h := LimitBodyHandler(http.HandlerFunc(echo), 4)
	for _, test := range []struct {
		body string
		code int
	}{
		{"abcd", http.StatusOK},
		{"abcde", http.StatusBadRequest},
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(test.body)))
		if have, want := w.Code, test.code; have != want {
			t.Errorf("%s: have: %v, want: %v", test.body, have, want)
		}
	}
}
