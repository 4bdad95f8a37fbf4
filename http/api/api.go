// Package api contains JSON response helpers for the HTTP API.
package api

import (
	"encoding/json"
	"net/http"
)

// JSONError encodes err as JSON to w.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	jsonErr := &struct {
		Err string `json:"error"`
	}{Err: err.Error()}
	w.Header().Set("Content-type", "application/json")
	if statusCode < 1 {
		statusCode = http.StatusInternalServerError
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonErr)
}

// JSONFieldErrors encodes per-field validation messages as JSON to w
// with an Unprocessable Entity status.
func JSONFieldErrors(w http.ResponseWriter, errs map[string][]string) {
	jsonErr := &struct {
		Errs map[string][]string `json:"errors"`
	}{Errs: errs}
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(jsonErr)
}

// JSON encodes v as JSON to w with statusCode.
// A zero statusCode writes 200 OK.
func JSON(w http.ResponseWriter, v interface{}, statusCode int) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(v)
}
