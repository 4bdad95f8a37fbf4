package condition

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEvaluate(t *testing.T) {
	data := map[string]interface{}{
		"type":   "expense",
		"amount": "700",
		"count":  float64(3),
		"tags":   []interface{}{"travel", "urgent"},
		"flag":   true,
		"bad":    "abc",
	}

	for _, test := range []struct {
		name    string
		c       *Condition
		want    bool
		wantErr error
	}{
		{"nil", nil, true, nil},
		{"equals", &Condition{Field: "type", Value: "expense"}, true, nil},
		{"equals_explicit", &Condition{Field: "type", Operator: Equals, Value: "other"}, false, nil},
		{"equals_number_string", &Condition{Field: "amount", Value: float64(700)}, true, nil},
		{"equals_bool", &Condition{Field: "flag", Value: "true"}, true, nil},
		{"equals_missing_null", &Condition{Field: "missing", Value: nil}, true, nil},
		{"equals_missing_value", &Condition{Field: "missing", Value: "x"}, false, nil},
		{"not_equals", &Condition{Field: "type", Operator: NotEquals, Value: "income"}, true, nil},
		{"not_equals_missing", &Condition{Field: "missing", Operator: NotEquals, Value: "x"}, true, nil},
		{"contains", &Condition{Field: "type", Operator: Contains, Value: "pen"}, true, nil},
		{"contains_list", &Condition{Field: "tags", Operator: Contains, Value: "urgent"}, true, nil},
		{"contains_missing", &Condition{Field: "missing", Operator: Contains, Value: "x"}, false, nil},
		{"greater_than", &Condition{Field: "amount", Operator: GreaterThan, Value: "500"}, true, nil},
		{"greater_than_false", &Condition{Field: "count", Operator: GreaterThan, Value: 3}, false, nil},
		{"less_than", &Condition{Field: "count", Operator: LessThan, Value: "10"}, true, nil},
		{"less_than_missing", &Condition{Field: "missing", Operator: LessThan, Value: "10"}, false, nil},
		{"greater_than_mismatch", &Condition{Field: "bad", Operator: GreaterThan, Value: "1"}, false, ErrTypeMismatch},
		{"unknown_operator", &Condition{Field: "type", Operator: "matches", Value: "x"}, false, ErrUnknownOperator},
	} {
		t.Run(test.name, func(t *testing.T) {
			have, err := Evaluate(test.c, data)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("have err: %v, want: %v", err, test.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if have != test.want {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
			// no hidden state: same inputs, same outputs
			again, _ := Evaluate(test.c, data)
			if again != have {
				t.Error("evaluation not idempotent")
			}
		})
	}
}

func TestMetFailsClosed(t *testing.T) {
	c := &Condition{Field: "amount", Operator: GreaterThan, Value: "10"}
	if Met(c, map[string]interface{}{"amount": "lots"}) {
		t.Error("type mismatch should not be met")
	}
	if !Met(c, map[string]interface{}{"amount": 11}) {
		t.Error("expected condition to be met")
	}
}

func TestUnmarshalShorthand(t *testing.T) {
	var v Visibility
	err := json.Unmarshal([]byte(`{"type": "expense", "amount": {"operator": "greater_than", "value": 100}}`), &v)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := v["type"].Operator, Equals; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := v["amount"].Operator, GreaterThan; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if !v.Visible(map[string]interface{}{"type": "expense", "amount": "150"}) {
		t.Error("expected visible")
	}
	if v.Visible(map[string]interface{}{"type": "expense", "amount": "50"}) {
		t.Error("expected not visible")
	}
	if v.Visible(map[string]interface{}{}) {
		t.Error("expected not visible with empty data")
	}
	if err = v.Check(); err != nil {
		t.Error(err)
	}
}

func TestUnmarshalSingleCondition(t *testing.T) {
	var v Visibility
	err := json.Unmarshal([]byte(`{"field": "type", "operator": "equals", "value": "expense"}`), &v)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(v), 1; have != want {
		t.Fatalf("have: %v, want: %v: %v", have, want, v)
	}
	c := v["type"]
	if c == nil {
		t.Fatalf("missing condition for type: %v", v)
	}
	if have, want := c.Operator, Equals; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if !v.Visible(map[string]interface{}{"type": "expense"}) {
		t.Error("expected visible")
	}
	if v.Visible(map[string]interface{}{"type": "income"}) {
		t.Error("expected not visible")
	}
	if err = v.Check(); err != nil {
		t.Error(err)
	}

	// extra keys mean a map of field names
	v = nil
	if err = json.Unmarshal([]byte(`{"field": "a", "value": "b", "kind": "c"}`), &v); err != nil {
		t.Fatal(err)
	}
	if have, want := len(v), 3; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestCheck(t *testing.T) {
	for _, test := range []struct {
		name  string
		c     *Condition
		valid bool
	}{
		{"nil", nil, true},
		{"ok", &Condition{Field: "a", Value: "b"}, true},
		{"no_field", &Condition{Value: "b"}, false},
		{"bad_operator", &Condition{Field: "a", Operator: "like", Value: "b"}, false},
		{"non_numeric_ordering", &Condition{Field: "a", Operator: LessThan, Value: "b"}, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if have, want := test.c.Check() == nil, test.valid; have != want {
				t.Errorf("have valid: %v, want: %v", have, want)
			}
		})
	}
}
