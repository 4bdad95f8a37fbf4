package http

import (
	"net/http"

	"github.com/micromdm/nanolib/log"
)

type APIEngine interface {
	Submitter
	SubmissionRetriever
	InstanceRetriever
	ActionPerformer
	Reassigner
	PendingLister
}

// Mux can register HTTP handlers.
// Ostensibly this supports flow router.
type Mux interface {
	// Handle registers the handler for the given pattern.
	Handle(pattern string, handler http.Handler, methods ...string)
}

// HandleAPIv1 registers the various API handlers into mux.
// API endpoint paths are prepended with prefix.
// Authentication or any other layered handlers are not present.
// They are assumed to be layered with mux, possibly at the Handle call.
// If prefix is empty and these handlers are used in sub-paths then
// handlers should have that sub-path stripped from the request.
// The logger is adorned with a "handler" key of the endpoint name.
func HandleAPIv1(prefix string, mux Mux, logger log.Logger, e APIEngine) {
	// submissions

	mux.Handle(
		prefix+"/form/:id/submissions",
		SubmitHandler(e, logger.With("handler", "submit")),
		"POST",
	)

	mux.Handle(
		prefix+"/submission/:id",
		GetSubmissionHandler(e, logger.With("handler", "get submission")),
		"GET",
	)

	// workflow instances

	mux.Handle(
		prefix+"/instance/:id",
		GetInstanceHandler(e, logger.With("handler", "get instance")),
		"GET",
	)

	mux.Handle(
		prefix+"/instance/:id/history",
		GetHistoryHandler(e, logger.With("handler", "get history")),
		"GET",
	)

	mux.Handle(
		prefix+"/instance/:id/action",
		ActionHandler(e, logger.With("handler", "action")),
		"POST",
	)

	mux.Handle(
		prefix+"/instance/:id/reassign",
		ReassignHandler(e, logger.With("handler", "reassign")),
		"POST",
	)

	mux.Handle(
		prefix+"/pending",
		PendingHandler(e, logger.With("handler", "pending")),
		"GET",
	)
}
