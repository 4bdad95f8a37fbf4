package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/formflow/formflow/engine/storage"
	"github.com/formflow/formflow/workflow"
)

func scanSubscriptions(rows *sql.Rows) (map[string]*storage.Subscription, error) {
	ret := make(map[string]*storage.Subscription)
	for rows.Next() {
		var name string
		var raw []byte
		if err := rows.Scan(&name, &raw); err != nil {
			return ret, err
		}
		subscr := new(storage.Subscription)
		if err := json.Unmarshal(raw, subscr); err != nil {
			return ret, fmt.Errorf("unmarshal subscription %s: %w", name, err)
		}
		ret[name] = subscr
	}
	return ret, rows.Err()
}

// RetrieveSubscriptions retrieves subscriptions by names.
// See the storage interface type for further docs.
func (s *MySQLStorage) RetrieveSubscriptions(ctx context.Context, names []string) (map[string]*storage.Subscription, error) {
	if len(names) < 1 {
		return nil, errors.New("no names specified")
	}
	args := make([]interface{}, len(names))
	for i, name := range names {
		args[i] = name
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, subscription FROM subscriptions WHERE name IN (?`+strings.Repeat(", ?", len(names)-1)+`);`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get subscriptions by name: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// RetrieveSubscriptionsByEvent retrieves subscriptions matching an event of a form.
// See the storage interface type for further docs.
func (s *MySQLStorage) RetrieveSubscriptionsByEvent(ctx context.Context, formID string, ev workflow.Event) (map[string]*storage.Subscription, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, subscription FROM subscriptions WHERE form_id = '' OR form_id = ?;`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("get subscriptions by form: %w", err)
	}
	defer rows.Close()
	subscrs, err := scanSubscriptions(rows)
	if err != nil {
		return nil, err
	}
	for name, subscr := range subscrs {
		if !subscr.Matches(formID, ev) {
			delete(subscrs, name)
		}
	}
	return subscrs, nil
}

// StoreSubscription stores a subscription.
// See the storage interface type for further docs.
func (s *MySQLStorage) StoreSubscription(ctx context.Context, name string, subscr *storage.Subscription) error {
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
	_, err = s.db.ExecContext(
		ctx,
		`
INSERT INTO subscriptions
  (name, form_id, subscription)
VALUES
  (?, ?, ?) AS new
ON DUPLICATE KEY
UPDATE
  form_id = new.form_id,
  subscription = new.subscription;`,
		name,
		subscr.FormID,
		raw,
	)
	return err
}

// DeleteSubscription removes a subscription.
// See the storage interface type for further docs.
func (s *MySQLStorage) DeleteSubscription(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE name = ?;`, name)
	return err
}
