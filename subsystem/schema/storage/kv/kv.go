// Package kv implements a schema storage backend using key-value storage.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/utils/kv"
	"github.com/formflow/formflow/workflow"
)

const (
	keyPfxSchema   = "schema."
	keyPfxTemplate = "template."
)

// KV is a schema storage backend using key-value storage.
type KV struct {
	b kv.TraversingBucket
}

func New(b kv.TraversingBucket) *KV {
	return &KV{b: b}
}

// get unmarshals the JSON at k into v.
// It reports false with no error if k does not exist.
func (s *KV) get(ctx context.Context, k string, v interface{}) (bool, error) {
	err := kv.GetJSON(ctx, s.b, k, v)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *KV) delete(ctx context.Context, k string) error {
	found, err := s.b.Has(ctx, k)
	if err != nil {
		return fmt.Errorf("checking %s: %w", k, err)
	} else if !found {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, k)
	}
	return s.b.Delete(ctx, k)
}

// RetrieveFormSchema returns the form schema in the key-value store by form ID.
func (s *KV) RetrieveFormSchema(ctx context.Context, formID string) (*form.Schema, error) {
	if formID == "" {
		return nil, storage.ErrNoID
	}
	schema := new(form.Schema)
	if found, err := s.get(ctx, keyPfxSchema+formID, schema); err != nil || !found {
		return nil, err
	}
	return schema, nil
}

// RetrieveWorkflowTemplate returns the workflow template in the key-value store by form ID.
func (s *KV) RetrieveWorkflowTemplate(ctx context.Context, formID string) (*workflow.Template, error) {
	if formID == "" {
		return nil, storage.ErrNoID
	}
	tmpl := new(workflow.Template)
	if found, err := s.get(ctx, keyPfxTemplate+formID, tmpl); err != nil || !found {
		return nil, err
	}
	return tmpl, nil
}

// ListFormIDs returns the sorted form IDs of stored schemas.
func (s *KV) ListFormIDs(ctx context.Context) ([]string, error) {
	return kv.KeysWithPrefix(ctx, s.b, keyPfxSchema)
}

// StoreFormSchema stores a form schema in the key-value store.
func (s *KV) StoreFormSchema(ctx context.Context, schema *form.Schema) error {
	if schema == nil || schema.ID == "" {
		return storage.ErrNoID
	}
	return kv.SetJSON(ctx, s.b, keyPfxSchema+schema.ID, schema)
}

// StoreWorkflowTemplate stores a workflow template in the key-value store.
func (s *KV) StoreWorkflowTemplate(ctx context.Context, tmpl *workflow.Template) error {
	if tmpl == nil || tmpl.FormID == "" {
		return storage.ErrNoID
	}
	return kv.SetJSON(ctx, s.b, keyPfxTemplate+tmpl.FormID, tmpl)
}

// DeleteFormSchema deletes a form schema from the key-value store.
func (s *KV) DeleteFormSchema(ctx context.Context, formID string) error {
	return s.delete(ctx, keyPfxSchema+formID)
}

// DeleteWorkflowTemplate deletes a workflow template from the key-value store.
func (s *KV) DeleteWorkflowTemplate(ctx context.Context, formID string) error {
	return s.delete(ctx, keyPfxTemplate+formID)
}
