package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/formflow/formflow/engine"
	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/log/logkeys"

	"github.com/micromdm/nanolib/log"
)

// Subscriptions delivers notifications to the targets of the stored
// subscriptions matching their form and event.
type Subscriptions struct {
	store  storage.ReadSubscriptionStorage
	logger log.Logger
	client *http.Client
	header http.Header
}

// SubscriptionsOption configures Subscriptions.
type SubscriptionsOption func(*Subscriptions)

// WithSubscriptionsLogger sets the logger used for log targets.
func WithSubscriptionsLogger(logger log.Logger) SubscriptionsOption {
	return func(s *Subscriptions) {
		s.logger = logger
	}
}

// WithSubscriptionsClient sets the HTTP client used for webhook targets.
func WithSubscriptionsClient(client *http.Client) SubscriptionsOption {
	return func(s *Subscriptions) {
		s.client = client
	}
}

// WithSubscriptionsHeader adds a header to every webhook delivery.
func WithSubscriptionsHeader(key, value string) SubscriptionsOption {
	return func(s *Subscriptions) {
		s.header.Add(key, value)
	}
}

// NewSubscriptions creates a new subscription notifier.
func NewSubscriptions(store storage.ReadSubscriptionStorage, opts ...SubscriptionsOption) *Subscriptions {
	s := &Subscriptions{
		store:  store,
		logger: log.NopLogger,
		client: http.DefaultClient,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers n to every matching subscription.
// A failing subscription does not stop delivery to the others.
func (s *Subscriptions) Send(ctx context.Context, n *engine.Notification) error {
	subscrs, err := s.store.RetrieveSubscriptionsByEvent(ctx, n.FormID, n.Event)
	if err != nil {
		return fmt.Errorf("retrieving subscriptions: %w", err)
	}
	names := make([]string, 0, len(subscrs))
	for name := range subscrs {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err = s.deliver(ctx, name, subscrs[name], n); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Subscriptions) deliver(ctx context.Context, name string, subscr *storage.Subscription, n *engine.Notification) error {
	switch subscr.Target {
	case storage.TargetWebhook:
		opts := []WebhookOption{WithClient(s.client)}
		for k, vs := range s.header {
			for _, v := range vs {
				opts = append(opts, WithHeader(k, v))
			}
		}
		for k, v := range subscr.Header {
			opts = append(opts, WithHeader(k, v))
		}
		return NewWebhook(subscr.URL, opts...).Send(ctx, n)
	case storage.TargetLog:
		return NewLogger(s.logger.With(logkeys.Subscription, name)).Send(ctx, n)
	}
	return fmt.Errorf("invalid target: %q", subscr.Target)
}
