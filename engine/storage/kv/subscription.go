package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/utils/kv"
	"github.com/formflow/formflow/workflow"
)

// RetrieveSubscriptions implements the storage interface method.
func (s *KV) RetrieveSubscriptions(ctx context.Context, names []string) (map[string]*storage.Subscription, error) {
	if len(names) < 1 {
		return nil, errors.New("no names specified")
	}
	ret := make(map[string]*storage.Subscription)
	for _, name := range names {
		subscr := new(storage.Subscription)
		if err := getJSON(ctx, s.subscrStore, name, subscr); isNotFound(err) {
			continue
		} else if err != nil {
			return ret, fmt.Errorf("getting subscription %s: %w", name, err)
		}
		ret[name] = subscr
	}
	return ret, nil
}

// RetrieveSubscriptionsByEvent implements the storage interface method.
func (s *KV) RetrieveSubscriptionsByEvent(ctx context.Context, formID string, ev workflow.Event) (map[string]*storage.Subscription, error) {
	// every subscription is read: there is no index by event.
	names, err := kv.KeysWithPrefix(ctx, s.subscrStore, "")
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	ret := make(map[string]*storage.Subscription)
	for _, name := range names {
		subscr := new(storage.Subscription)
		if err = getJSON(ctx, s.subscrStore, name, subscr); isNotFound(err) {
			// deleted while traversing
			continue
		} else if err != nil {
			return ret, fmt.Errorf("getting subscription %s: %w", name, err)
		}
		if subscr.Matches(formID, ev) {
			ret[name] = subscr
		}
	}
	return ret, nil
}

// StoreSubscription implements the storage interface method.
func (s *KV) StoreSubscription(ctx context.Context, name string, subscr *storage.Subscription) error {
	if name == "" {
		return storage.ErrMissingID
	}
	if err := subscr.Validate(); err != nil {
		return fmt.Errorf("validating: %w", err)
	}
	return kv.SetJSON(ctx, s.subscrStore, name, subscr)
}

// DeleteSubscription implements the storage interface method.
func (s *KV) DeleteSubscription(ctx context.Context, name string) error {
	return s.subscrStore.Delete(ctx, name)
}
