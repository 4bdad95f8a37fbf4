package main

import (
	"net/http"

	enginehttp "github.com/formflow/formflow/engine/http"
	"github.com/formflow/formflow/log/logkeys"
	schemahttp "github.com/formflow/formflow/subsystem/schema/http"

	"github.com/micromdm/nanolib/log"
)

// wrapMux applies wrap to every handler registered with it.
type wrapMux struct {
	mux  enginehttp.Mux
	wrap func(http.Handler) http.Handler
}

func (m *wrapMux) Handle(pattern string, handler http.Handler, methods ...string) {
	m.mux.Handle(pattern, m.wrap(handler), methods...)
}

func handlers(mux enginehttp.Mux, logger log.Logger, e enginehttp.APIEngine, s *storageConfig) {
	enginehttp.HandleAPIv1("/v1", mux, logger, e)
	enginehttp.HandleSubscriptions("/v1", mux, logger, s.engine)

	// form schemas and workflow templates

	mux.Handle(
		"/v1/forms",
		schemahttp.ListFormsHandler(s.schema, logger.With("handler", "list forms")),
		"GET",
	)

	mux.Handle(
		"/v1/form/:id",
		schemahttp.GetSchemaHandler(s.schema, logger.With("handler", "get schema")),
		"GET",
	)

	mux.Handle(
		"/v1/form/:id/workflow",
		schemahttp.GetTemplateHandler(s.schema, logger.With("handler", "get template")),
		"GET",
	)

	store, ok := s.writableSchema()
	if !ok {
		logger.Debug(logkeys.Message, "read-only schema storage: not registering write handlers")
		return
	}

	mux.Handle(
		"/v1/form/:id",
		schemahttp.PutSchemaHandler(store, logger.With("handler", "put schema")),
		"PUT",
	)

	mux.Handle(
		"/v1/form/:id",
		schemahttp.DeleteSchemaHandler(store, logger.With("handler", "delete schema")),
		"DELETE",
	)

	mux.Handle(
		"/v1/form/:id/workflow",
		schemahttp.PutTemplateHandler(store, logger.With("handler", "put template")),
		"PUT",
	)

	mux.Handle(
		"/v1/form/:id/workflow",
		schemahttp.DeleteTemplateHandler(store, logger.With("handler", "delete template")),
		"DELETE",
	)
}
