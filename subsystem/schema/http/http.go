// Package http provides HTTP handlers for the schema subsystem.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/http/api"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoID       = errors.New("no id provided")
	ErrIDMismatch = errors.New("id mismatch")
)

func statusCode(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return 0
}

// ListFormsHandler returns an HTTP handler that lists stored form IDs.
func ListFormsHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		ids, err := store.ListFormIDs(r.Context())
		if err != nil {
			logger.Info(logkeys.Message, "list forms", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(logkeys.Message, "list forms", logkeys.GenericCount, len(ids))
		if ids == nil {
			ids = []string{}
		}
		if err = api.JSON(w, ids, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json", logkeys.Error, err)
		}
	}
}

// GetSchemaHandler returns an HTTP handler that fetches a form schema.
func GetSchemaHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		schema, err := store.RetrieveFormSchema(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve schema", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		} else if schema == nil {
			err = fmt.Errorf("%w: form %s", storage.ErrNotFound, id)
			logger.Info(logkeys.Message, "retrieve schema", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved schema",
			logkeys.GenericCount, len(schema.Fields),
		)
		if err = api.JSON(w, schema, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json", logkeys.Error, err)
		}
	}
}

// PutSchemaHandler returns an HTTP handler that checks and stores a form schema.
func PutSchemaHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		schema := new(form.Schema)
		if err := json.NewDecoder(r.Body).Decode(schema); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if schema.ID == "" {
			schema.ID = id
		} else if schema.ID != id {
			logger.Info(logkeys.Message, "id check", logkeys.Error, ErrIDMismatch)
			api.JSONError(w, ErrIDMismatch, http.StatusBadRequest)
			return
		}
		if err := schema.Check(); err != nil {
			logger.Info(logkeys.Message, "checking schema", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if err := store.StoreFormSchema(r.Context(), schema); err != nil {
			logger.Info(logkeys.Message, "store schema", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(logkeys.Message, "stored schema")
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteSchemaHandler returns an HTTP handler that deletes a form schema.
func DeleteSchemaHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		if err := store.DeleteFormSchema(r.Context(), id); err != nil {
			logger.Info(logkeys.Message, "delete schema", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetTemplateHandler returns an HTTP handler that fetches the workflow template of a form.
func GetTemplateHandler(store storage.ReadStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		tmpl, err := store.RetrieveWorkflowTemplate(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve template", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		} else if tmpl == nil {
			err = fmt.Errorf("%w: workflow for form %s", storage.ErrNotFound, id)
			logger.Info(logkeys.Message, "retrieve template", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved template",
			logkeys.TemplateName, tmpl.Name,
		)
		if err = api.JSON(w, tmpl, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json", logkeys.Error, err)
		}
	}
}

// PutTemplateHandler returns an HTTP handler that checks and stores the
// workflow template of a form, replacing any previous one.
func PutTemplateHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		tmpl := new(workflow.Template)
		if err := json.NewDecoder(r.Body).Decode(tmpl); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if tmpl.FormID == "" {
			tmpl.FormID = id
		} else if tmpl.FormID != id {
			logger.Info(logkeys.Message, "id check", logkeys.Error, ErrIDMismatch)
			api.JSONError(w, ErrIDMismatch, http.StatusBadRequest)
			return
		}
		if err := tmpl.Check(); err != nil {
			logger.Info(logkeys.Message, "checking template", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if err := store.StoreWorkflowTemplate(r.Context(), tmpl); err != nil {
			logger.Info(logkeys.Message, "store template", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		logger.Debug(
			logkeys.Message, "stored template",
			logkeys.TemplateName, tmpl.Name,
			logkeys.GenericCount, len(tmpl.Steps),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteTemplateHandler returns an HTTP handler that deletes the workflow template of a form.
func DeleteTemplateHandler(store storage.Storage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "id parameter", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)
		if err := store.DeleteWorkflowTemplate(r.Context(), id); err != nil {
			logger.Info(logkeys.Message, "delete template", logkeys.Error, err)
			api.JSONError(w, err, statusCode(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
