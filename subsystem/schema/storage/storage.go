// Package storage defines types and methods for a form schema and
// workflow template storage backend.
package storage

import (
	"context"
	"errors"

	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/workflow"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoID     = errors.New("no form id supplied")
)

type ReadStorage interface {
	// RetrieveFormSchema returns the form schema by form ID.
	// Nil is returned with no error if the form has not been stored.
	RetrieveFormSchema(ctx context.Context, formID string) (*form.Schema, error)

	// RetrieveWorkflowTemplate returns the workflow template bound to a form ID.
	// Nil is returned with no error if the form has no workflow.
	RetrieveWorkflowTemplate(ctx context.Context, formID string) (*workflow.Template, error)

	// ListFormIDs returns the IDs of all stored form schemas.
	ListFormIDs(ctx context.Context) ([]string, error)
}

type Storage interface {
	ReadStorage

	// StoreFormSchema stores a form schema by its ID.
	// It is up to the caller to check the schema.
	StoreFormSchema(ctx context.Context, schema *form.Schema) error

	// StoreWorkflowTemplate stores a workflow template by its form ID,
	// replacing any existing template for that form.
	// It is up to the caller to check the template.
	StoreWorkflowTemplate(ctx context.Context, tmpl *workflow.Template) error

	// DeleteFormSchema deletes a form schema by form ID.
	// ErrNotFound is returned for a form that hasn't been stored.
	DeleteFormSchema(ctx context.Context, formID string) error

	// DeleteWorkflowTemplate deletes the workflow template of a form ID.
	// ErrNotFound is returned for a form without a template.
	DeleteWorkflowTemplate(ctx context.Context, formID string) error
}
