package condition

import (
	"encoding/json"
	"sort"
)

// Visibility maps field names to conditions which must all be met.
// The map key names the field; a condition's own Field is ignored.
type Visibility map[string]*Condition

// UnmarshalJSON accepts either a map of field names to conditions or a
// single condition object such as
// {"field": "type", "operator": "equals", "value": "expense"}.
// An object is read as a single condition when it has a string "field"
// and a "value" and no keys other than "field", "operator" and "value".
func (v *Visibility) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	if isSingleCondition(raw) {
		c := new(Condition)
		if err := json.Unmarshal(b, c); err != nil {
			return err
		}
		*v = Visibility{c.Field: &Condition{Operator: c.Operator, Value: c.Value}}
		return nil
	}
	m := make(map[string]*Condition, len(raw))
	for field, rawCond := range raw {
		c := new(Condition)
		if err := json.Unmarshal(rawCond, c); err != nil {
			return err
		}
		m[field] = c
	}
	*v = m
	return nil
}

func isSingleCondition(raw map[string]json.RawMessage) bool {
	var field string
	if rawField, ok := raw["field"]; !ok || json.Unmarshal(rawField, &field) != nil || field == "" {
		return false
	}
	if _, ok := raw["value"]; !ok {
		return false
	}
	for k := range raw {
		switch k {
		case "field", "operator", "value":
		default:
			return false
		}
	}
	return true
}

// Visible reports whether all conditions in v are met by data.
// An empty Visibility is always visible.
func (v Visibility) Visible(data map[string]interface{}) bool {
	for _, field := range v.fields() {
		c := v[field]
		if c == nil {
			continue
		}
		keyed := Condition{Field: field, Operator: c.Operator, Value: c.Value}
		if !Met(&keyed, data) {
			return false
		}
	}
	return true
}

// Check reports structural problems with any condition in v.
func (v Visibility) Check() error {
	for _, field := range v.fields() {
		c := v[field]
		if c == nil {
			continue
		}
		keyed := Condition{Field: field, Operator: c.Operator, Value: c.Value}
		if err := keyed.Check(); err != nil {
			return err
		}
	}
	return nil
}

// fields returns the keys of v in a stable order.
func (v Visibility) fields() []string {
	fields := make([]string, 0, len(v))
	for k := range v {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
