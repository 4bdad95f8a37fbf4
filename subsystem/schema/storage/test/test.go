// Package test contains a shared test suite for schema storage backends.
package test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/formflow/formflow/condition"
	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/subsystem/schema/storage"
	"github.com/formflow/formflow/workflow"
)

func testSchema(id string) *form.Schema {
	max := 5000.0
	return &form.Schema{
		ID:      id,
		Name:    "Expenses",
		Version: 2,
		Fields: []form.Field{
			{Name: "amount", Type: form.Number, Required: true, MaxValue: &max},
			{
				Name:       "receipt",
				Type:       form.File,
				Visibility: condition.Visibility{"kind": {Value: "travel"}},
			},
		},
	}
}

func testTemplate(formID string) *workflow.Template {
	return &workflow.Template{
		Name:   "approval",
		FormID: formID,
		Steps: []workflow.Step{
			{
				Name:       "review",
				Order:      1,
				Assignment: workflow.Assignment{Group: "managers"},
				Gate: &condition.Condition{
					Field:    "amount",
					Operator: condition.GreaterThan,
					Value:    1000.0,
				},
				Actions: []workflow.Action{{Type: workflow.Approve}},
			},
		},
	}
}

// TestSchemaStorage runs the shared schema storage tests against the
// backend returned by newStorage.
func TestSchemaStorage(t *testing.T, newStorage func() storage.Storage) {
	s := newStorage()
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		schema, err := s.RetrieveFormSchema(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if schema != nil {
			t.Error("expected nil schema")
		}
		tmpl, err := s.RetrieveWorkflowTemplate(ctx, "missing")
		if err != nil {
			t.Fatal(err)
		}
		if tmpl != nil {
			t.Error("expected nil template")
		}
		if err = s.DeleteFormSchema(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNotFound)
		}
		if err = s.DeleteWorkflowTemplate(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNotFound)
		}
	})

	t.Run("roundtrip", func(t *testing.T) {
		schema := testSchema("expense")
		if err := s.StoreFormSchema(ctx, schema); err != nil {
			t.Fatal(err)
		}
		schema2, err := s.RetrieveFormSchema(ctx, "expense")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(schema, schema2) {
			t.Errorf("have: %#v, want: %#v", schema2, schema)
		}

		tmpl := testTemplate("expense")
		if err = s.StoreWorkflowTemplate(ctx, tmpl); err != nil {
			t.Fatal(err)
		}
		tmpl2, err := s.RetrieveWorkflowTemplate(ctx, "expense")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(tmpl, tmpl2) {
			t.Errorf("have: %#v, want: %#v", tmpl2, tmpl)
		}

		// one template per form: storing replaces
		tmpl.Name = "approval-v2"
		if err = s.StoreWorkflowTemplate(ctx, tmpl); err != nil {
			t.Fatal(err)
		}
		tmpl2, err = s.RetrieveWorkflowTemplate(ctx, "expense")
		if err != nil {
			t.Fatal(err)
		}
		if have, want := tmpl2.Name, "approval-v2"; have != want {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})

	t.Run("list", func(t *testing.T) {
		if err := s.StoreFormSchema(ctx, testSchema("another")); err != nil {
			t.Fatal(err)
		}
		ids, err := s.ListFormIDs(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if have, want := ids, []string{"another", "expense"}; !reflect.DeepEqual(have, want) {
			t.Errorf("have: %v, want: %v", have, want)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.DeleteWorkflowTemplate(ctx, "expense"); err != nil {
			t.Fatal(err)
		}
		tmpl, err := s.RetrieveWorkflowTemplate(ctx, "expense")
		if err != nil {
			t.Fatal(err)
		}
		if tmpl != nil {
			t.Error("expected nil template after delete")
		}
		// the schema is independent of its template
		schema, err := s.RetrieveFormSchema(ctx, "expense")
		if err != nil {
			t.Fatal(err)
		}
		if schema == nil {
			t.Fatal("schema deleted with template")
		}
		if err = s.DeleteFormSchema(ctx, "expense"); err != nil {
			t.Fatal(err)
		}
		if err = s.DeleteFormSchema(ctx, "another"); err != nil {
			t.Fatal(err)
		}
		if schema, err = s.RetrieveFormSchema(ctx, "expense"); err != nil {
			t.Fatal(err)
		} else if schema != nil {
			t.Error("expected nil schema after delete")
		}
	})

	t.Run("no_id", func(t *testing.T) {
		if err := s.StoreFormSchema(ctx, &form.Schema{}); !errors.Is(err, storage.ErrNoID) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNoID)
		}
		if _, err := s.RetrieveFormSchema(ctx, ""); !errors.Is(err, storage.ErrNoID) {
			t.Errorf("have: %v, want: %v", err, storage.ErrNoID)
		}
	})
}
