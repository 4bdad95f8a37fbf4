package workflow

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/formflow/formflow/condition"
)

const testTemplate = `{
	"name": "expense-approval",
	"form_id": "expense",
	"steps": [
		{"name": "approve", "order": 2, "assignment": {"role": "finance"}, "actions": [
			{"action_type": "approve"},
			{"action_type": "reject", "requires_comment": true}
		]},
		{"name": "review", "order": 1, "assignment": {"group": "managers"},
			"condition": {"field": "amount", "operator": "greater_than", "value": 1000},
			"auto_advance_after": "48h",
			"actions": [{"action_type": "approve"}, {"action_type": "approve", "name": "fast track", "next_step": "archive"}]},
		{"name": "archive", "order": 3, "auto_advance_after": 60, "actions": [{"action_type": "approve"}]}
	]
}`

func loadTemplate(t *testing.T) *Template {
	t.Helper()
	tmpl := new(Template)
	if err := json.Unmarshal([]byte(testTemplate), tmpl); err != nil {
		t.Fatal(err)
	}
	if err := tmpl.Check(); err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func TestDurationUnmarshal(t *testing.T) {
	tmpl := loadTemplate(t)
	if have, want := time.Duration(tmpl.Step("review").AutoAdvanceAfter), 48*time.Hour; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := time.Duration(tmpl.Step("archive").AutoAdvanceAfter), time.Minute; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	b, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if have, want := string(b), `"1m30s"`; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestFirstEligibleStep(t *testing.T) {
	tmpl := loadTemplate(t)
	for _, test := range []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{"gated_out", map[string]interface{}{"amount": 500}, "approve"},
		{"gated_in", map[string]interface{}{"amount": "1500"}, "review"},
		{"missing_field", map[string]interface{}{}, "approve"},
		{"mismatch_fails_closed", map[string]interface{}{"amount": "lots"}, "approve"},
	} {
		t.Run(test.name, func(t *testing.T) {
			s := FirstEligibleStep(tmpl, test.data)
			if s == nil {
				t.Fatal("nil step")
			}
			if have := s.Name; have != test.want {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
		})
	}
}

func TestNoEligibleStep(t *testing.T) {
	tmpl := &Template{FormID: "f", Steps: []Step{
		{Name: "a", Order: 1, Gate: &condition.Condition{Field: "x", Value: "y"}},
	}}
	if s := FirstEligibleStep(tmpl, map[string]interface{}{"x": "z"}); s != nil {
		t.Errorf("expected nil step, have: %v", s.Name)
	}
	if s := NextEligibleStep(tmpl, map[string]interface{}{"x": "y"}, 1); s != nil {
		t.Errorf("expected nil step, have: %v", s.Name)
	}
}

func TestResolveNextStep(t *testing.T) {
	tmpl := loadTemplate(t)
	inst := &Instance{Template: *tmpl, CurrentStep: "review", Active: true, StartedAt: time.Now()}
	data := map[string]interface{}{"amount": 1500}

	s, err := ResolveNextStep(inst, tmpl.Step("review").Action(Approve), data)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := s.Name, "approve"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// explicit next step bypasses ordering
	s, err = ResolveNextStep(inst, &tmpl.Step("review").Actions[1], data)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := s.Name, "archive"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	inst.CurrentStep = "archive"
	s, err = ResolveNextStep(inst, nil, data)
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("expected completion, have: %v", s.Name)
	}

	inst.CurrentStep = ""
	if _, err = ResolveNextStep(inst, nil, data); !errors.Is(err, ErrNoCurrentStep) {
		t.Errorf("have: %v, want: %v", err, ErrNoCurrentStep)
	}
}

func TestTemplateCheck(t *testing.T) {
	for _, test := range []struct {
		name  string
		tmpl  *Template
		valid bool
	}{
		{"nil", nil, false},
		{"no_form", &Template{}, false},
		{"empty_ok", &Template{FormID: "f"}, true},
		{"duplicate_order", &Template{FormID: "f", Steps: []Step{{Name: "a", Order: 1}, {Name: "b", Order: 1}}}, false},
		{"duplicate_name", &Template{FormID: "f", Steps: []Step{{Name: "a", Order: 1}, {Name: "a", Order: 2}}}, false},
		{"two_assignees", &Template{FormID: "f", Steps: []Step{{Name: "a", Assignment: Assignment{Actor: "x", Role: "y"}}}}, false},
		{"unknown_next", &Template{FormID: "f", Steps: []Step{{Name: "a", Actions: []Action{{Type: Approve, NextStep: "z"}}}}}, false},
		{"bad_action", &Template{FormID: "f", Steps: []Step{{Name: "a", Actions: []Action{{Type: Reassign}}}}}, false},
		{"bad_gate", &Template{FormID: "f", Steps: []Step{{Name: "a", Gate: &condition.Condition{Field: "x", Operator: "near"}}}}, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.tmpl.Check()
			if have, want := err == nil, test.valid; have != want {
				t.Errorf("have valid: %v, want: %v (err: %v)", have, want, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("expected ErrInvalidTemplate, have: %v", err)
			}
		})
	}
}

func TestAuthorized(t *testing.T) {
	alice := &Actor{Name: "alice", Groups: []string{"managers"}, RoleName: "staff"}
	admin := &Actor{Name: "root", Admin: true}
	for _, test := range []struct {
		name string
		a    Assignment
		id   Identity
		want bool
	}{
		{"actor", Assignment{Actor: "alice"}, alice, true},
		{"other_actor", Assignment{Actor: "bob"}, alice, false},
		{"group", Assignment{Group: "managers"}, alice, true},
		{"other_group", Assignment{Group: "finance"}, alice, false},
		{"role", Assignment{Role: "staff"}, alice, true},
		{"other_role", Assignment{Role: "finance"}, alice, false},
		{"system_only", Assignment{}, alice, false},
		{"admin_override", Assignment{Actor: "bob"}, admin, true},
		{"admin_system", Assignment{}, admin, true},
		{"nil_identity", Assignment{Actor: "alice"}, nil, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if have := Authorized(test.a, test.id); have != test.want {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
		})
	}
}

func TestInstanceState(t *testing.T) {
	now := time.Now()
	for _, test := range []struct {
		name string
		inst *Instance
		want State
	}{
		{"nil", nil, NotStarted},
		{"not_started", &Instance{}, NotStarted},
		{"active", &Instance{StartedAt: now, Active: true, CurrentStep: "a"}, Active},
		{"stalled", &Instance{StartedAt: now, Active: true}, Stalled},
		{"terminated", &Instance{StartedAt: now, CompletedAt: &now, Outcome: StatusApproved}, Terminated},
	} {
		t.Run(test.name, func(t *testing.T) {
			if have := test.inst.State(); have != test.want {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
		})
	}
}

func TestDistinctApprovals(t *testing.T) {
	step := &Step{Name: "board", RequireAllApprovals: true}
	entered := &HistoryEntry{Step: "prev", Action: Approve, Actor: "x",
		DataBefore: &Snapshot{CurrentStep: "prev"}, DataAfter: &Snapshot{CurrentStep: "board"}}
	approvedBy := func(actor string) *HistoryEntry {
		return &HistoryEntry{Step: "board", Action: Approve, Actor: actor,
			DataBefore: &Snapshot{CurrentStep: "board"}, DataAfter: &Snapshot{CurrentStep: "board"}}
	}
	agg := DistinctApprovals{Count: 2}

	if agg.Complete(step, []*HistoryEntry{entered}, "alice") {
		t.Error("one approval should not complete")
	}
	if agg.Complete(step, []*HistoryEntry{entered, approvedBy("alice")}, "alice") {
		t.Error("repeat approver should not complete")
	}
	if !agg.Complete(step, []*HistoryEntry{entered, approvedBy("alice")}, "bob") {
		t.Error("two distinct approvers should complete")
	}
	// approvals before re-entering the step do not count
	if agg.Complete(step, []*HistoryEntry{approvedBy("alice"), entered}, "bob") {
		t.Error("stale approval counted")
	}
	if !agg.Complete(&Step{Name: "board"}, nil, "alice") {
		t.Error("steps not requiring all approvals complete immediately")
	}
	if !(SingleApproval{}).Complete(step, nil, "alice") {
		t.Error("single approval should complete")
	}
}
