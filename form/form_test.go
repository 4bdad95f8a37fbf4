package form

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"
)

const expenseSchema = `{
	"id": "expense",
	"fields": [
		{"name": "type", "type": "select", "required": true},
		{"name": "amount", "label": "Amount", "type": "number", "required": true, "rules": [
			{"rule_type": "max_if", "condition": {"field": "type", "operator": "equals", "value": "expense"}, "value": "500"}
		]},
		{"name": "receipt_no", "type": "text", "show_if": {"type": "expense"}, "required": true},
		{"name": "contact", "type": "email"},
		{"name": "notes", "type": "textarea", "max_length": 10}
	]
}`

func loadSchema(t *testing.T, s string) *Schema {
	t.Helper()
	schema := new(Schema)
	if err := json.Unmarshal([]byte(s), schema); err != nil {
		t.Fatal(err)
	}
	if err := schema.Check(); err != nil {
		t.Fatal(err)
	}
	return schema
}

func errFields(e Errors) []string {
	var fields []string
	for k := range e {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func TestMaxIf(t *testing.T) {
	schema := loadSchema(t, expenseSchema)

	errs := Validate(schema, map[string]interface{}{"type": "expense", "amount": "700", "receipt_no": "R1"})
	if have, want := errFields(errs), []string{"amount"}; !reflect.DeepEqual(have, want) {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := errs["amount"], []string{"Maximum value is 500"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	errs = Validate(schema, map[string]interface{}{"type": "expense", "amount": "300", "receipt_no": "R1"})
	if len(errs) != 0 {
		t.Errorf("expected accepted, have: %v", errs)
	}

	// rule gate not met
	errs = Validate(schema, map[string]interface{}{"type": "income", "amount": "700"})
	if len(errs) != 0 {
		t.Errorf("expected accepted, have: %v", errs)
	}
}

func TestMaxIfInvalidNumberReportedOnce(t *testing.T) {
	schema := loadSchema(t, expenseSchema)
	errs := Validate(schema, map[string]interface{}{"type": "expense", "amount": "lots", "receipt_no": "R1"})
	if have, want := errs["amount"], []string{msgInvalidNumber}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestResolveCoercesTypes(t *testing.T) {
	schema := loadSchema(t, `{
		"id": "survey",
		"fields": [
			{"name": "score", "type": "rating"},
			{"name": "agree", "type": "checkbox"},
			{"name": "comment", "type": "text"}
		]
	}`)
	data, errs := Resolve(schema, map[string]interface{}{"score": " 4 ", "agree": "yes", "comment": "700"})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	want := Data{"score": 4.0, "agree": true, "comment": "700"}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("have: %#v, want: %#v", data, want)
	}
}

func TestEmptyDataReportsVisibleRequired(t *testing.T) {
	schema := loadSchema(t, expenseSchema)
	errs := Validate(schema, map[string]interface{}{})
	// receipt_no is hidden: its visibility depends on type
	if have, want := errFields(errs), []string{"amount", "type"}; !reflect.DeepEqual(have, want) {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := errs["amount"], []string{"Amount is required"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := errs["type"], []string{"type is required"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}
}

func TestSingleConditionVisibility(t *testing.T) {
	schema := loadSchema(t, `{
		"id": "expense",
		"fields": [
			{"name": "type", "type": "select"},
			{"name": "receipt", "type": "text", "required": true,
				"show_if": {"field": "type", "operator": "equals", "value": "expense"}}
		]
	}`)

	errs := Validate(schema, map[string]interface{}{"type": "expense"})
	if have, want := errs["receipt"], []string{"receipt is required"}; !reflect.DeepEqual(have, want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	errs = Validate(schema, map[string]interface{}{"type": "income"})
	if len(errs) != 0 {
		t.Errorf("expected accepted, have: %v", errs)
	}
}

func TestTypeChecks(t *testing.T) {
	min, max := 1.0, 5.0
	minLen := 2
	for _, test := range []struct {
		name  string
		field Field
		value interface{}
		want  []string
	}{
		{"number_ok", Field{Type: Number}, "12.5", nil},
		{"number_coercion", Field{Type: Number, MinValue: &min}, "abc", []string{msgInvalidNumber}},
		{"number_low", Field{Type: Number, MinValue: &min}, 0, []string{"Value must be at least 1"}},
		{"rating_high", Field{Type: Rating, MaxValue: &max}, "6", []string{"Value must be at most 5"}},
		{"text_short", Field{Type: Text, MinLength: &minLen}, "a", []string{"Minimum length is 2 characters"}},
		{"email_ok", Field{Type: Email}, "a@example.com", nil},
		{"email_bad", Field{Type: Email}, "nope", []string{msgInvalidEmail}},
		{"date_ok", Field{Type: Date}, "2024-02-29", nil},
		{"date_bad", Field{Type: Date}, "2023-02-29", []string{msgInvalidDate}},
		{"datetime_local", Field{Type: DateTime}, "2024-01-01T10:30", nil},
		{"datetime_rfc3339", Field{Type: DateTime}, "2024-01-01T10:30:00Z", nil},
		{"datetime_bad", Field{Type: DateTime}, "tomorrow", []string{msgInvalidDateTime}},
		{"checkbox_ok", Field{Type: Boolean}, "on", nil},
		{"checkbox_bad", Field{Type: Boolean}, "maybe", []string{msgInvalidBoolean}},
		{"multiselect_ok", Field{Type: MultiSelect}, []interface{}{"a", "b"}, nil},
		{"multiselect_bad", Field{Type: MultiSelect}, "a", []string{msgInvalidList}},
		{"select_bad", Field{Type: Select}, []interface{}{"a"}, []string{msgInvalidChoice}},
		{"pattern_ok", Field{Type: Text, Pattern: `[A-Z]{3}`}, "ABC1", nil},
		{"pattern_bad", Field{Type: Text, Pattern: `[A-Z]{3}`}, "1ABC", []string{msgInvalidFormat}},
		{"empty_skips_checks", Field{Type: Number, MinValue: &min}, "", nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			test.field.Name = "f"
			schema := &Schema{ID: "s", Fields: []Field{test.field}}
			if err := schema.Check(); err != nil {
				t.Fatal(err)
			}
			errs := Validate(schema, map[string]interface{}{"f": test.value})
			if have := errs["f"]; !reflect.DeepEqual(have, test.want) {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
		})
	}
}

func TestRequiredCheckbox(t *testing.T) {
	schema := &Schema{ID: "s", Fields: []Field{{Name: "agree", Label: "Agreement", Type: Boolean, Required: true}}}
	if errs := Validate(schema, map[string]interface{}{"agree": false}); len(errs["agree"]) != 1 {
		t.Errorf("unchecked required checkbox should fail, have: %v", errs)
	}
	if errs := Validate(schema, map[string]interface{}{"agree": true}); len(errs) != 0 {
		t.Errorf("have: %v", errs)
	}
}

func TestCustomRules(t *testing.T) {
	isUrgent := `{"field": "priority", "value": "urgent"}`
	schema := loadSchema(t, `{"id": "s", "fields": [
		{"name": "priority", "type": "select"},
		{"name": "reason", "type": "text", "rules": [
			{"rule_type": "required_if", "condition": `+isUrgent+`, "message": "Urgent requests need a reason"},
			{"rule_type": "pattern_if", "condition": `+isUrgent+`, "value": "[A-Z]"}
		]},
		{"name": "days", "type": "number", "rules": [
			{"rule_type": "min_if", "condition": `+isUrgent+`, "value": "1"},
			{"rule_type": "max_if", "value": "30", "message": "Too long"}
		]}
	]}`)

	for _, test := range []struct {
		name string
		data map[string]interface{}
		want Errors
	}{
		{
			"required_if_custom_message",
			map[string]interface{}{"priority": "urgent"},
			Errors{"reason": {"Urgent requests need a reason"}},
		},
		{
			"pattern_if",
			map[string]interface{}{"priority": "urgent", "reason": "lowercase"},
			Errors{"reason": {"Invalid format"}},
		},
		{
			"min_if",
			map[string]interface{}{"priority": "urgent", "reason": "Why", "days": 0},
			Errors{"days": {"Minimum value is 1"}},
		},
		{
			"unconditional_max_if",
			map[string]interface{}{"days": "31"},
			Errors{"days": {"Too long"}},
		},
		{
			// type check and both rules report their coercion failure independently
			"coercion_failure_rules_still_run",
			map[string]interface{}{"priority": "urgent", "reason": "Why", "days": "many"},
			Errors{"days": {msgInvalidNumber, msgInvalidNumber, msgInvalidNumber}},
		},
		{
			"gate_not_met",
			map[string]interface{}{"priority": "low", "reason": "lowercase", "days": 0},
			Errors{},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			have := Validate(schema, test.data)
			if !reflect.DeepEqual(have, test.want) {
				t.Errorf("have: %v, want: %v", have, test.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	schema := loadSchema(t, expenseSchema)

	data, errs := Resolve(schema, map[string]interface{}{
		"type":       "income",
		"amount":     "100",
		"receipt_no": "hidden",
		"unknown":    "dropped",
		"notes":      "",
	})
	if len(errs) != 0 {
		t.Fatal(errs)
	}
	want := Data{"type": "income", "amount": 100.0}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("have: %v, want: %v", data, want)
	}

	data, errs = Resolve(schema, map[string]interface{}{})
	if data != nil || len(errs) == 0 {
		t.Errorf("expected rejection, have: %v, %v", data, errs)
	}
}

func TestSchemaCheck(t *testing.T) {
	for _, test := range []struct {
		name    string
		schema  *Schema
		wantErr error
	}{
		{"nil", nil, ErrEmptySchema},
		{"no_id", &Schema{}, ErrMissingSchemaID},
		{"no_name", &Schema{ID: "s", Fields: []Field{{Type: Text}}}, ErrMissingFieldName},
		{"duplicate", &Schema{ID: "s", Fields: []Field{{Name: "a", Type: Text}, {Name: "a", Type: Text}}}, ErrDuplicateField},
		{"unknown_type", &Schema{ID: "s", Fields: []Field{{Name: "a", Type: "hologram"}}}, ErrUnknownFieldType},
		{"bad_pattern", &Schema{ID: "s", Fields: []Field{{Name: "a", Type: Text, Pattern: "("}}}, ErrInvalidPattern},
		{"bad_rule", &Schema{ID: "s", Fields: []Field{{Name: "a", Type: Text, Rules: []Rule{{Type: "sometimes"}}}}}, ErrUnknownRuleType},
		{"bad_rule_value", &Schema{ID: "s", Fields: []Field{{Name: "a", Type: Number, Rules: []Rule{{Type: MaxIf, Value: "x"}}}}}, ErrInvalidBounds},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.schema.Check()
			if !errors.Is(err, test.wantErr) {
				t.Errorf("have: %v, want: %v", err, test.wantErr)
			}
		})
	}
}
