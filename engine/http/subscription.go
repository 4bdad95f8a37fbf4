package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/http/api"
	"github.com/formflow/formflow/log/logkeys"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	ErrMissingStore = errors.New("missing store")
	ErrNoName       = errors.New("missing name parameter")
)

// GetSubscriptionHandler retrieves and returns JSON of the named subscription.
func GetSubscriptionHandler(store storage.ReadSubscriptionStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Error, ErrMissingStore)
			api.JSONError(w, ErrMissingStore, 0)
			return
		}

		name := flow.Param(r.Context(), "name")
		if name == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoName)
			api.JSONError(w, ErrNoName, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.Subscription, name)
		subscrs, err := store.RetrieveSubscriptions(r.Context(), []string{name})
		if err != nil {
			logger.Info(logkeys.Message, "retrieve subscription", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}
		subscr, ok := subscrs[name]
		if !ok {
			err = fmt.Errorf("%w: subscription %s", storage.ErrNotFound, name)
			logger.Info(logkeys.Message, "retrieve subscription", logkeys.Error, err)
			api.JSONError(w, err, http.StatusNotFound)
			return
		}

		logger.Debug(logkeys.Message, "retrieved subscription")
		if err = api.JSON(w, subscr, 0); err != nil {
			logger.Info(logkeys.Message, "encoding json to body", logkeys.Error, err)
		}
	}
}

// PutSubscriptionHandler stores JSON of the named subscription.
func PutSubscriptionHandler(store storage.SubscriptionStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Error, ErrMissingStore)
			api.JSONError(w, ErrMissingStore, 0)
			return
		}

		name := flow.Param(r.Context(), "name")
		if name == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoName)
			api.JSONError(w, ErrNoName, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.Subscription, name)
		subscr := new(storage.Subscription)
		if err := json.NewDecoder(r.Body).Decode(subscr); err != nil {
			logger.Info(logkeys.Message, "decoding body", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		if err := subscr.Validate(); err != nil {
			logger.Info(logkeys.Message, "validating subscription", logkeys.Error, err)
			api.JSONError(w, err, http.StatusBadRequest)
			return
		}

		if err := store.StoreSubscription(r.Context(), name, subscr); err != nil {
			logger.Info(logkeys.Message, "storing subscription", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(logkeys.Message, "stored subscription", logkeys.FormID, subscr.FormID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteSubscriptionHandler deletes the named subscription.
func DeleteSubscriptionHandler(store storage.SubscriptionStorage, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := ctxlog.Logger(r.Context(), logger)
		if store == nil {
			logger.Info(logkeys.Error, ErrMissingStore)
			api.JSONError(w, ErrMissingStore, 0)
			return
		}

		name := flow.Param(r.Context(), "name")
		if name == "" {
			logger.Info(logkeys.Message, "parameters", logkeys.Error, ErrNoName)
			api.JSONError(w, ErrNoName, http.StatusBadRequest)
			return
		}

		logger = logger.With(logkeys.Subscription, name)
		if err := store.DeleteSubscription(r.Context(), name); err != nil {
			logger.Info(logkeys.Message, "deleting subscription", logkeys.Error, err)
			api.JSONError(w, err, 0)
			return
		}

		logger.Debug(logkeys.Message, "deleted subscription")
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleSubscriptions registers the subscription handlers into mux.
// API endpoint paths are prepended with prefix.
func HandleSubscriptions(prefix string, mux Mux, logger log.Logger, store storage.SubscriptionStorage) {
	mux.Handle(
		prefix+"/subscription/:name",
		GetSubscriptionHandler(store, logger.With("handler", "get subscription")),
		"GET",
	)

	mux.Handle(
		prefix+"/subscription/:name",
		PutSubscriptionHandler(store, logger.With("handler", "put subscription")),
		"PUT",
	)

	mux.Handle(
		prefix+"/subscription/:name",
		DeleteSubscriptionHandler(store, logger.With("handler", "delete subscription")),
		"DELETE",
	)
}
