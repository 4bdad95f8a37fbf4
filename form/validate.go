package form

import (
	"fmt"
	"strings"

	"github.com/formflow/formflow/condition"
)

// Errors maps field names to validation error messages.
// An empty Errors means the data was accepted.
type Errors map[string][]string

// Add appends msg to the errors for field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error implements error so that Errors can be returned where an error is expected.
func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msgs := range e {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Data is resolved submission data: field names to scalar or list values.
type Data map[string]interface{}

// Validate validates data against schema.
// Fields are processed in schema order. Fields hidden by their visibility
// condition are skipped. Fields without errors are absent from the result.
func Validate(schema *Schema, data map[string]interface{}) Errors {
	errs := make(Errors)
	if schema == nil {
		return errs
	}
	for i := range schema.Fields {
		f := &schema.Fields[i]
		if !f.Visibility.Visible(data) {
			continue
		}
		if msgs := validateField(f, data[f.Name], data); len(msgs) > 0 {
			errs[f.Name] = msgs
		}
	}
	return errs
}

// Resolve validates data and, if accepted, returns the resolved data
// containing only visible schema fields that carry a value.
func Resolve(schema *Schema, data map[string]interface{}) (Data, Errors) {
	errs := Validate(schema, data)
	if len(errs) > 0 {
		return nil, errs
	}
	resolved := make(Data)
	if schema == nil {
		return resolved, errs
	}
	for i := range schema.Fields {
		f := &schema.Fields[i]
		v, ok := data[f.Name]
		if !ok || isEmpty(f, v) || !f.Visibility.Visible(data) {
			continue
		}
		resolved[f.Name] = coerce(f, v)
	}
	return resolved, errs
}

// coerce converts accepted number and boolean values to their Go types.
// Other values are kept as submitted.
func coerce(f *Field, v interface{}) interface{} {
	switch f.Type {
	case Number, Rating:
		if n, ok := condition.Number(v); ok {
			return n
		}
	case Boolean:
		if b, ok := Bool(v); ok {
			return b
		}
	}
	return v
}

func validateField(f *Field, v interface{}, data map[string]interface{}) (msgs []string) {
	empty := isEmpty(f, v)
	if f.Required && empty {
		msgs = append(msgs, f.DisplayName()+" is required")
	}

	if !empty {
		msgs = append(msgs, f.Type.checker()(f, v)...)
		if f.Pattern != "" {
			if re, err := compilePattern(f.Pattern); err != nil || !re.MatchString(condition.String(v)) {
				msgs = append(msgs, msgInvalidFormat)
			}
		}
	}

	for i := range f.Rules {
		if msg := validateRule(f, &f.Rules[i], v, empty, data); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return
}

// validateRule applies r to the value v of field f.
// It returns at most one message.
func validateRule(f *Field, r *Rule, v interface{}, empty bool, data map[string]interface{}) string {
	if !condition.Met(r.Condition, data) {
		return ""
	}
	switch r.Type {
	case RequiredIf:
		if empty {
			return ruleMessage(r, "This field is required")
		}
	case MinIf, MaxIf:
		if empty {
			return ""
		}
		n, ok := condition.Number(v)
		if !ok {
			if f.Type == Number || f.Type == Rating {
				// already reported by the type check
				return ""
			}
			return msgInvalidNumber
		}
		limit, ok := condition.Number(r.Value)
		if !ok {
			return fmt.Sprintf("Invalid rule comparison value %q", r.Value)
		}
		if r.Type == MinIf && n < limit {
			return ruleMessage(r, "Minimum value is "+r.Value)
		}
		if r.Type == MaxIf && n > limit {
			return ruleMessage(r, "Maximum value is "+r.Value)
		}
	case PatternIf:
		if empty {
			return ""
		}
		re, err := compilePattern(r.Value)
		if err != nil || !re.MatchString(condition.String(v)) {
			return ruleMessage(r, msgInvalidFormat)
		}
	}
	return ""
}

func ruleMessage(r *Rule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

// isEmpty reports whether v counts as "no value" for f.
// An unchecked checkbox is empty so that a required checkbox must be checked.
func isEmpty(f *Field, v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	case bool:
		return f.Type == Boolean && !t
	}
	if f.Type == Boolean {
		if b, ok := Bool(v); ok {
			return !b
		}
	}
	return false
}
