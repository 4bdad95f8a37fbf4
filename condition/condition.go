// Package condition evaluates the small condition language used by form
// visibility rules, conditional validation rules and workflow step gates.
//
// A condition is a {field, operator, value} triple evaluated against a
// key-value data map. Evaluation is pure: identical inputs always yield the
// same result.
package condition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTypeMismatch is returned when an ordering operator is applied to a
// value that can not be coerced to a number.
var ErrTypeMismatch = errors.New("type mismatch")

// ErrUnknownOperator is returned for operators outside of the supported set.
var ErrUnknownOperator = errors.New("unknown operator")

// Operator is a comparison operator.
type Operator string

const (
	Equals      Operator = "equals"
	NotEquals   Operator = "not_equals"
	Contains    Operator = "contains"
	GreaterThan Operator = "greater_than"
	LessThan    Operator = "less_than"
)

// Valid reports whether o is a supported operator.
// The empty operator is valid and means Equals.
func (o Operator) Valid() bool {
	switch o {
	case "", Equals, NotEquals, Contains, GreaterThan, LessThan:
		return true
	}
	return false
}

// Condition compares the value of Field in a data map against Value.
type Condition struct {
	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    interface{} `json:"value"`
}

// UnmarshalJSON accepts either a condition object or a bare value.
// A bare value is shorthand for an equality test, as used by
// visibility maps where the key names the field.
func (c *Condition) UnmarshalJSON(b []byte) error {
	if c == nil {
		return errors.New("nil condition")
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		type plain Condition
		var p plain
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return err
		}
		*c = Condition(p)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*c = Condition{Operator: Equals, Value: v}
	return nil
}

// Check reports structural problems with c.
func (c *Condition) Check() error {
	if c == nil {
		return nil
	}
	if c.Field == "" {
		return errors.New("missing condition field")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownOperator, c.Operator)
	}
	if c.Operator == GreaterThan || c.Operator == LessThan {
		if _, ok := Number(c.Value); !ok {
			return fmt.Errorf("%w: comparison value for %s is not numeric", ErrTypeMismatch, c.Operator)
		}
	}
	return nil
}

// Evaluate evaluates c against data.
// A nil condition is always satisfied. A field missing from data is
// treated as a null actual value.
func Evaluate(c *Condition, data map[string]interface{}) (bool, error) {
	if c == nil {
		return true, nil
	}
	return evaluate(c.Operator, data[c.Field], c.Value)
}

// Met is like Evaluate but fails closed: any evaluation error means the
// condition is not met.
func Met(c *Condition, data map[string]interface{}) bool {
	ok, err := Evaluate(c, data)
	return err == nil && ok
}

func evaluate(op Operator, actual, expected interface{}) (bool, error) {
	switch op {
	case "", Equals:
		return equal(actual, expected), nil
	case NotEquals:
		return !equal(actual, expected), nil
	case Contains:
		if actual == nil {
			return false, nil
		}
		if expected == nil {
			return false, nil
		}
		return strings.Contains(String(actual), String(expected)), nil
	case GreaterThan, LessThan:
		if actual == nil {
			// ordering against null fails closed
			return false, nil
		}
		a, ok := Number(actual)
		if !ok {
			return false, fmt.Errorf("%w: actual value %q", ErrTypeMismatch, String(actual))
		}
		e, ok := Number(expected)
		if !ok {
			return false, fmt.Errorf("%w: expected value %q", ErrTypeMismatch, String(expected))
		}
		if op == GreaterThan {
			return a > e, nil
		}
		return a < e, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
}

// equal compares by string form so that a submitted "500" equals a
// configured 500. A null only equals a null.
func equal(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return String(actual) == String(expected)
}

// String returns the canonical string form of a data value.
func String(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		return t.String()
	case []string:
		return strings.Join(t, ",")
	case []interface{}:
		s := make([]string, 0, len(t))
		for _, e := range t {
			s = append(s, String(e))
		}
		return strings.Join(s, ",")
	}
	return fmt.Sprint(v)
}

// Number coerces v to a float64.
// Strings are parsed after trimming surrounding whitespace.
func Number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
