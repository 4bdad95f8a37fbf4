// Package form defines dynamic form schemas and validates submitted data against them.
package form

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/formflow/formflow/condition"
)

var (
	ErrEmptySchema      = errors.New("empty schema")
	ErrMissingSchemaID  = errors.New("missing schema id")
	ErrMissingFieldName = errors.New("missing field name")
	ErrDuplicateField   = errors.New("duplicate field name")
	ErrUnknownFieldType = errors.New("unknown field type")
	ErrUnknownRuleType  = errors.New("unknown rule type")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrInvalidBounds    = errors.New("invalid bounds")
)

// Choice is one selectable option of a choice field.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RuleType is the kind of a conditional validation rule.
type RuleType string

const (
	RequiredIf RuleType = "required_if"
	MinIf      RuleType = "min_if"
	MaxIf      RuleType = "max_if"
	PatternIf  RuleType = "pattern_if"
)

// Rule is a custom validation rule gated by its own condition.
// Value is the comparison value: a number for MinIf and MaxIf and a
// regular expression for PatternIf.
type Rule struct {
	Type      RuleType             `json:"rule_type"`
	Condition *condition.Condition `json:"condition,omitempty"`
	Value     string               `json:"value,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// Field defines one form field.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`

	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`

	// choice membership is checked by the boundary layer, not here.
	Choices []Choice `json:"choices,omitempty"`

	// NestedForm references another schema by ID for nested fields.
	NestedForm string `json:"nested_form,omitempty"`

	Visibility condition.Visibility `json:"show_if,omitempty"`
	Rules      []Rule               `json:"rules,omitempty"`
}

// DisplayName returns the label if set, otherwise the name.
func (f *Field) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Schema is an ordered list of fields with unique names.
type Schema struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	Version int     `json:"version,omitempty"`
	Fields  []Field `json:"fields"`
}

// Field returns the named field or nil.
func (s *Schema) Field(name string) *Field {
	if s == nil {
		return nil
	}
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Check reports authoring problems with s: duplicate or missing names,
// unknown types, uncompilable patterns and malformed rules.
func (s *Schema) Check() error {
	if s == nil {
		return ErrEmptySchema
	}
	if s.ID == "" {
		return ErrMissingSchemaID
	}
	seen := make(map[string]struct{})
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: %w", i, ErrMissingFieldName)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := f.check(); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

func (f *Field) check() error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownFieldType, f.Type)
	}
	if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
		return fmt.Errorf("%w: min_value greater than max_value", ErrInvalidBounds)
	}
	if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
		return fmt.Errorf("%w: min_length greater than max_length", ErrInvalidBounds)
	}
	if f.Pattern != "" {
		if _, err := compilePattern(f.Pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	if err := f.Visibility.Check(); err != nil {
		return fmt.Errorf("visibility: %w", err)
	}
	for j, r := range f.Rules {
		if err := r.check(); err != nil {
			return fmt.Errorf("rule %d: %w", j, err)
		}
	}
	return nil
}

func (r *Rule) check() error {
	if err := r.Condition.Check(); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	switch r.Type {
	case RequiredIf:
	case MinIf, MaxIf:
		if _, ok := condition.Number(r.Value); !ok {
			return fmt.Errorf("%w: %s value %q is not numeric", ErrInvalidBounds, r.Type, r.Value)
		}
	case PatternIf:
		if _, err := compilePattern(r.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRuleType, r.Type)
	}
	return nil
}

// compilePattern compiles p anchored at the start of the input.
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + p + `)`)
}
