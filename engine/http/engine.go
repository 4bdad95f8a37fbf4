// Package http contains HTTP handlers that work with the formflow engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/formflow/formflow/engine"
	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/http/api"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/workflow"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrNoID    = errors.New("missing id parameter")
	ErrNoActor = errors.New("missing actor")
	ErrNoStep  = errors.New("missing step")
)

// StatusCode maps engine errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, engine.ErrNoSuchForm):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrConflict), errors.Is(err, workflow.ErrNoCurrentStep):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidAction),
		errors.Is(err, workflow.ErrCommentRequired),
		errors.Is(err, workflow.ErrUnknownStepName):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type Submitter interface {
	Submit(ctx context.Context, req *engine.SubmitRequest) (*workflow.Submission, form.Errors, error)
}

type submitRequest struct {
	SubmittedBy string                 `json:"submitted_by"`
	Data        map[string]interface{} `json:"data"`
}

// SubmitHandler validates and accepts a submission for the form in the id parameter.
// Validation failures are returned as field errors.
func SubmitHandler(s Submitter, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.FormID, id)

		req := new(submitRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		sub, verrs, err := s.Submit(r.Context(), &engine.SubmitRequest{
			FormID:      id,
			SubmittedBy: req.SubmittedBy,
			Data:        req.Data,
		})
		if err != nil {
			logger.Info(logkeys.Message, "submitting", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		} else if len(verrs) > 0 {
			logger.Debug(
				logkeys.Message, "submission invalid",
				logkeys.GenericCount, len(verrs),
			)
			api.JSONFieldErrors(w, verrs)
			return
		}

		logger.Debug(
			logkeys.Message, "submitted",
			logkeys.SubmissionID, sub.ID,
		)
		if err = api.JSON(w, sub, http.StatusCreated); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

type SubmissionRetriever interface {
	RetrieveSubmission(ctx context.Context, id string) (*workflow.Submission, error)
}

// GetSubmissionHandler returns the submission in the id parameter.
func GetSubmissionHandler(s SubmissionRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.SubmissionID, id)
		sub, err := s.RetrieveSubmission(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve submission", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		if err = api.JSON(w, sub, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

type InstanceRetriever interface {
	RetrieveInstance(ctx context.Context, id string) (*workflow.Instance, error)
	RetrieveHistory(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error)
}

// GetInstanceHandler returns the workflow instance in the id parameter.
func GetInstanceHandler(s InstanceRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, id)
		inst, err := s.RetrieveInstance(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve instance", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		jsonResp := &struct {
			*workflow.Instance
			State string `json:"state"`
		}{Instance: inst, State: inst.State().String()}
		if err = api.JSON(w, jsonResp, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

// GetHistoryHandler returns the history of the workflow instance in the id parameter.
func GetHistoryHandler(s InstanceRetriever, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, id)
		if _, err := s.RetrieveInstance(r.Context(), id); err != nil {
			logger.Info(logkeys.Message, "retrieve instance", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		history, err := s.RetrieveHistory(r.Context(), id)
		if err != nil {
			logger.Info(logkeys.Message, "retrieve history", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		logger.Debug(
			logkeys.Message, "retrieved history",
			logkeys.GenericCount, len(history),
		)
		if history == nil {
			history = []*workflow.HistoryEntry{}
		}
		if err = api.JSON(w, history, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

type ActionPerformer interface {
	PerformAction(ctx context.Context, req *engine.ActionRequest) (*workflow.Instance, error)
}

type actionRequest struct {
	Action     workflow.ActionType  `json:"action"`
	ActionName string               `json:"action_name,omitempty"`
	Actor      *workflow.Actor      `json:"actor"`
	Comment    string               `json:"comment,omitempty"`
	DelegateTo *workflow.Assignment `json:"delegate_to,omitempty"`
}

// ActionHandler performs an action on the current step of the instance in the id parameter.
// The acting identity is taken from the body. Authenticating it is
// left to upstream layers.
func ActionHandler(p ActionPerformer, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, id)

		req := new(actionRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if req.Actor == nil || req.Actor.Name == "" {
			logger.Info(logkeys.Message, "actor check", logkeys.Error, ErrNoActor)
			api.JSONError(w, ErrNoActor, http.StatusBadRequest)
			return
		}
		logger = logger.With(
			logkeys.Action, string(req.Action),
			logkeys.Actor, req.Actor.Name,
		)

		inst, err := p.PerformAction(r.Context(), &engine.ActionRequest{
			InstanceID: id,
			Action:     req.Action,
			ActionName: req.ActionName,
			Actor:      req.Actor,
			Comment:    req.Comment,
			DelegateTo: req.DelegateTo,
		})
		if err != nil {
			logger.Info(logkeys.Message, "performing action", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		logger.Debug(
			logkeys.Message, "performed action",
			logkeys.StepName, inst.CurrentStep,
		)
		if err = api.JSON(w, inst, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

type Reassigner interface {
	Reassign(ctx context.Context, instanceID, stepName string, admin workflow.Identity, comment string) (*workflow.Instance, error)
}

type reassignRequest struct {
	Step    string          `json:"step"`
	Actor   *workflow.Actor `json:"actor"`
	Comment string          `json:"comment,omitempty"`
}

// ReassignHandler moves the instance in the id parameter to a named step.
func ReassignHandler(re Reassigner, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		id := flow.Param(r.Context(), "id")
		if id == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoID)
			api.JSONError(w, ErrNoID, http.StatusBadRequest)
			return
		}
		logger = logger.With(logkeys.InstanceID, id)

		req := new(reassignRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}
		if req.Actor == nil || req.Actor.Name == "" {
			logger.Info(logkeys.Message, "actor check", logkeys.Error, ErrNoActor)
			api.JSONError(w, ErrNoActor, http.StatusBadRequest)
			return
		} else if req.Step == "" {
			logger.Info(logkeys.Message, "step check", logkeys.Error, ErrNoStep)
			api.JSONError(w, ErrNoStep, http.StatusBadRequest)
			return
		}
		logger = logger.With(
			logkeys.Actor, req.Actor.Name,
			logkeys.StepName, req.Step,
		)

		inst, err := re.Reassign(r.Context(), id, req.Step, req.Actor, req.Comment)
		if err != nil {
			logger.Info(logkeys.Message, "reassigning", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		logger.Debug(logkeys.Message, "reassigned")
		if err = api.JSON(w, inst, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}

type PendingLister interface {
	Pending(ctx context.Context, id workflow.Identity) ([]*workflow.Instance, error)
}

// PendingHandler lists the active instances an actor may act on.
// The actor is described by the "actor", "group" (repeatable) and
// "role" query parameters.
func PendingHandler(l PendingLister, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		q := r.URL.Query()
		actor := &workflow.Actor{
			Name:     q.Get("actor"),
			Groups:   q["group"],
			RoleName: q.Get("role"),
		}
		if actor.Name == "" && len(actor.Groups) < 1 && actor.RoleName == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoActor)
			api.JSONError(w, ErrNoActor, http.StatusBadRequest)
			return
		}
		insts, err := l.Pending(r.Context(), actor)
		if err != nil {
			logger.Info(logkeys.Message, "listing pending", logkeys.Error, err)
			api.JSONError(w, err, StatusCode(err))
			return
		}
		logger.Debug(
			logkeys.Message, "listed pending",
			logkeys.Actor, actor.Name,
			logkeys.GenericCount, len(insts),
		)
		if insts == nil {
			insts = []*workflow.Instance{}
		}
		if err = api.JSON(w, insts, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json response", logkeys.Error, err)
		}
	}
}
