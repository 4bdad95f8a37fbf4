package yamldir

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/formflow/formflow/condition"
	"github.com/formflow/formflow/form"
	"github.com/formflow/formflow/workflow"
)

const expenseYAML = `
form:
  id: expense
  fields:
    - name: amount
      label: Amount
      type: number
      required: true
    - name: receipt
      type: file
      show_if:
        kind: travel
workflow:
  name: expense-approval
  steps:
    - name: review
      order: 1
      assignment: {group: managers}
      condition: {field: amount, operator: greater_than, value: 1000}
      auto_advance_after: 48h
      actions:
        - action_type: approve
        - action_type: reject
          requires_comment: true
`

const leaveYAML = `
form:
  id: leave
  fields:
    - name: days
      type: number
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "expense.yaml", expenseYAML)
	writeFile(t, dir, "leave.yml", leaveYAML)
	writeFile(t, dir, "README.md", "not a definition")

	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ids, err := s.ListFormIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := ids, []string{"expense", "leave"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	schema, err := s.RetrieveFormSchema(ctx, "expense")
	if err != nil {
		t.Fatal(err)
	}
	if schema == nil {
		t.Fatal("nil schema")
	}
	receipt := schema.Field("receipt")
	if receipt == nil {
		t.Fatal("missing field")
	}
	if have, want := receipt.Visibility["kind"], (&condition.Condition{Operator: condition.Equals, Value: "travel"}); !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := schema.Field("amount").Type, form.Number; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	tmpl, err := s.RetrieveWorkflowTemplate(ctx, "expense")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl == nil {
		t.Fatal("nil template")
	}
	if have, want := tmpl.FormID, "expense"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	review := tmpl.Step("review")
	if have, want := time.Duration(review.AutoAdvanceAfter), 48*time.Hour; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if a := review.Action(workflow.Reject); a == nil || !a.RequiresComment {
		t.Error("expected reject action requiring a comment")
	}
	if step := workflow.FirstEligibleStep(tmpl, map[string]interface{}{"amount": 1500}); step == nil || step.Name != "review" {
		t.Errorf("gate not loaded: %v", step)
	}

	if tmpl, err = s.RetrieveWorkflowTemplate(ctx, "leave"); err != nil {
		t.Fatal(err)
	} else if tmpl != nil {
		t.Error("expected no template")
	}
}

func TestLoadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "leave.yaml", leaveYAML)
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "bad.yaml", "form:\n  fields:\n    - name: x\n      type: bogus\n")
	if err = s.Load(); err == nil {
		t.Fatal("expected error")
	}
	schema, err := s.RetrieveFormSchema(context.Background(), "leave")
	if err != nil {
		t.Fatal(err)
	}
	if schema == nil {
		t.Error("previous definitions dropped")
	}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "leave.yaml", leaveYAML)
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan error, 10)
	w := NewWatcher(s,
		WithDebounce(10*time.Millisecond),
		WithReloadCallback(func(err error) { reloaded <- err }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// the watch may not be registered yet; keep writing until reloaded
	deadline := time.After(10 * time.Second)
	for {
		writeFile(t, dir, "expense.yaml", expenseYAML)
		select {
		case err = <-reloaded:
			if err != nil {
				// a partially written file; the next write reloads again
				continue
			}
		case <-time.After(100 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("no reload")
		}
		break
	}

	schema, err := s.RetrieveFormSchema(context.Background(), "expense")
	if err != nil {
		t.Fatal(err)
	}
	if schema == nil {
		t.Error("expected reloaded schema")
	}

	cancel()
	<-done
}
