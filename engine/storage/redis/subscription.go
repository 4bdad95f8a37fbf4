package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/workflow"
)

// subscrKey is a hash of subscription names to JSON subscriptions.
func (s *RedisStorage) subscrKey() string { return s.prefix + "subscriptions" }

// RetrieveSubscriptions implements the storage interface method.
func (s *RedisStorage) RetrieveSubscriptions(ctx context.Context, names []string) (map[string]*storage.Subscription, error) {
	if len(names) < 1 {
		return nil, errors.New("no names specified")
	}
	raws, err := s.client.HMGet(ctx, s.subscrKey(), names...).Result()
	if err != nil {
		return nil, err
	}
	ret := make(map[string]*storage.Subscription)
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// nil for missing fields
			continue
		}
		subscr := new(storage.Subscription)
		if err = json.Unmarshal([]byte(str), subscr); err != nil {
			return ret, fmt.Errorf("unmarshal subscription %s: %w", names[i], err)
		}
		ret[names[i]] = subscr
	}
	return ret, nil
}

// RetrieveSubscriptionsByEvent implements the storage interface method.
func (s *RedisStorage) RetrieveSubscriptionsByEvent(ctx context.Context, formID string, ev workflow.Event) (map[string]*storage.Subscription, error) {
	all, err := s.client.HGetAll(ctx, s.subscrKey()).Result()
	if err != nil {
		return nil, err
	}
	ret := make(map[string]*storage.Subscription)
	for name, raw := range all {
		subscr := new(storage.Subscription)
		if err = json.Unmarshal([]byte(raw), subscr); err != nil {
			return ret, fmt.Errorf("unmarshal subscription %s: %w", name, err)
		}
		if subscr.Matches(formID, ev) {
			ret[name] = subscr
		}
	}
	return ret, nil
}

// StoreSubscription implements the storage interface method.
func (s *RedisStorage) StoreSubscription(ctx context.Context, name string, subscr *storage.Subscription) error {
	if name == "" {
		return storage.ErrMissingID
	}
	if err := subscr.Validate(); err != nil {
		return fmt.Errorf("validating: %w", err)
	}
	raw, err := json.Marshal(subscr)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	return s.client.HSet(ctx, s.subscrKey(), name, raw).Err()
}

// DeleteSubscription implements the storage interface method.
func (s *RedisStorage) DeleteSubscription(ctx context.Context, name string) error {
	return s.client.HDel(ctx, s.subscrKey(), name).Err()
}
