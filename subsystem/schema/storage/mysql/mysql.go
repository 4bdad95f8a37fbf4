// Package mysql implements a schema storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/workflow"
)

// Schema contains the MySQL schema for the schema storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements a storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
}

type config struct {
	driver string
	dsn    string
	db     *sql.DB
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// New creates and returns a new MySQLStorage.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	return &MySQLStorage{db: cfg.db}, nil
}

// retrieve unmarshals the definition column of the single row of query into v.
// It reports false with no error if there is no row.
func (s *MySQLStorage) retrieve(ctx context.Context, v interface{}, query string, args ...interface{}) (bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, v)
}

// RetrieveFormSchema returns the form schema by form ID from MySQL.
func (s *MySQLStorage) RetrieveFormSchema(ctx context.Context, formID string) (*form.Schema, error) {
	if formID == "" {
		return nil, storage.ErrNoID
	}
	schema := new(form.Schema)
	found, err := s.retrieve(ctx, schema, `SELECT definition FROM schema_forms WHERE id = ?;`, formID)
	if err != nil || !found {
		return nil, err
	}
	return schema, nil
}

// RetrieveWorkflowTemplate returns the workflow template by form ID from MySQL.
func (s *MySQLStorage) RetrieveWorkflowTemplate(ctx context.Context, formID string) (*workflow.Template, error) {
	if formID == "" {
		return nil, storage.ErrNoID
	}
	tmpl := new(workflow.Template)
	found, err := s.retrieve(ctx, tmpl, `SELECT definition FROM schema_templates WHERE form_id = ?;`, formID)
	if err != nil || !found {
		return nil, err
	}
	return tmpl, nil
}

// ListFormIDs returns the sorted form IDs from MySQL.
func (s *MySQLStorage) ListFormIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM schema_forms ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StoreFormSchema stores a form schema in MySQL.
func (s *MySQLStorage) StoreFormSchema(ctx context.Context, schema *form.Schema) error {
	if schema == nil || schema.ID == "" {
		return storage.ErrNoID
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx, `
INSERT INTO schema_forms
	(id, definition)
VALUES
	(?, ?) as new
ON DUPLICATE KEY UPDATE
	definition = new.definition;`,
		schema.ID,
		raw,
	)
	return err
}

// StoreWorkflowTemplate stores a workflow template in MySQL.
func (s *MySQLStorage) StoreWorkflowTemplate(ctx context.Context, tmpl *workflow.Template) error {
	if tmpl == nil || tmpl.FormID == "" {
		return storage.ErrNoID
	}
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx, `
INSERT INTO schema_templates
	(form_id, name, definition)
VALUES
	(?, ?, ?) as new
ON DUPLICATE KEY UPDATE
	name = new.name,
	definition = new.definition;`,
		tmpl.FormID,
		tmpl.Name,
		raw,
	)
	return err
}

func (s *MySQLStorage) delete(ctx context.Context, query, id string) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	} else if n < 1 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return nil
}

// DeleteFormSchema deletes a form schema from MySQL.
func (s *MySQLStorage) DeleteFormSchema(ctx context.Context, formID string) error {
	return s.delete(ctx, `DELETE FROM schema_forms WHERE id = ?;`, formID)
}

// DeleteWorkflowTemplate deletes a workflow template from MySQL.
func (s *MySQLStorage) DeleteWorkflowTemplate(ctx context.Context, formID string) error {
	return s.delete(ctx, `DELETE FROM schema_templates WHERE form_id = ?;`, formID)
}
