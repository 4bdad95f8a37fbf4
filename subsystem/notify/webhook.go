package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/formflow/formflow/engine"
)

// Webhook delivers notifications as JSON HTTP POST requests.
type Webhook struct {
	url    string
	client *http.Client
	header http.Header
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithClient sets the HTTP client used for delivery.
func WithClient(client *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.client = client
	}
}

// WithHeader adds a header to every delivery request.
// Useful for shared-secret authentication of the receiver.
func WithHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		w.header.Add(key, value)
	}
}

// NewWebhook creates a new webhook notifier posting to url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: http.DefaultClient,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send posts n to the webhook URL.
// Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, n *engine.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range w.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Formflow-Event", string(n.Event))
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status: %s", n.Event, resp.Status)
	}
	return nil
}
