// Package http includes handlers and utilties.
package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodySize limits request bodies of LimitBodyHandler when no size is given.
const DefaultMaxBodySize = 1 << 20

// ReadAllAndReplaceBody reads all of r.Body and replaces it with a new byte buffer.
func ReadAllAndReplaceBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return b, err
	}
	defer r.Body.Close()
	r.Body = io.NopCloser(bytes.NewBuffer(b))
	return b, nil
}

// DumpHandler outputs the request line and body of the request to output.
// Requests without a body only output the request line.
func DumpHandler(next http.Handler, output io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := ReadAllAndReplaceBody(r)
		fmt.Fprintf(output, "%s %s\n", r.Method, r.URL.RequestURI())
		if len(body) > 0 {
			output.Write(append(body, '\n'))
		}
		next.ServeHTTP(w, r)
	}
}

// LimitBodyHandler caps request bodies at n bytes.
// Reading past the limit fails which handlers report as a bad request.
func LimitBodyHandler(next http.Handler, n int64) http.HandlerFunc {
	if n < 1 {
		n = DefaultMaxBodySize
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	}
}
