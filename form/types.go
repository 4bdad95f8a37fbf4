package form

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/formflow/formflow/condition"
)

// FieldType identifies the kind of a field and thereby the checks applied to its value.
type FieldType string

const (
	Text        FieldType = "text"
	TextArea    FieldType = "textarea"
	RichText    FieldType = "richtext"
	Number      FieldType = "number"
	Rating      FieldType = "rating"
	Email       FieldType = "email"
	Date        FieldType = "date"
	DateTime    FieldType = "datetime"
	Boolean     FieldType = "checkbox"
	Select      FieldType = "select"
	Radio       FieldType = "radio"
	MultiSelect FieldType = "multiselect"
	File        FieldType = "file"
	Image       FieldType = "image"
	Nested      FieldType = "nested"
	Lookup      FieldType = "lookup"
	Signature   FieldType = "signature"
	Location    FieldType = "location"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t.checker() != nil
}

// checkFunc validates a present (non-empty) value for a field and
// returns zero or more error messages.
type checkFunc func(f *Field, v interface{}) []string

// checker returns the type-specific check for t.
// Every field type has exactly one; unknown types have none.
func (t FieldType) checker() checkFunc {
	switch t {
	case Text, TextArea, RichText, Signature:
		return checkString
	case Email:
		return checkEmail
	case Number, Rating:
		return checkNumber
	case Date:
		return checkDate
	case DateTime:
		return checkDateTime
	case Boolean:
		return checkBoolean
	case Select, Radio, Lookup:
		return checkScalar
	case MultiSelect:
		return checkList
	case File, Image, Nested, Location:
		return checkNone
	}
	return nil
}

const (
	msgInvalidNumber   = "Please enter a valid number"
	msgInvalidEmail    = "Please enter a valid email address"
	msgInvalidDate     = "Please enter a valid date"
	msgInvalidDateTime = "Please enter a valid date and time"
	msgInvalidBoolean  = "Please enter a valid yes/no value"
	msgInvalidChoice   = "Please select a single value"
	msgInvalidList     = "Please select one or more values"
	msgInvalidFormat   = "Invalid format"
	msgInvalidText     = "Please enter text"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func checkNone(_ *Field, _ interface{}) []string { return nil }

func checkLength(f *Field, s string) (errs []string) {
	n := utf8.RuneCountInString(s)
	if f.MinLength != nil && n < *f.MinLength {
		errs = append(errs, fmt.Sprintf("Minimum length is %d characters", *f.MinLength))
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		errs = append(errs, fmt.Sprintf("Maximum length is %d characters", *f.MaxLength))
	}
	return
}

func checkString(f *Field, v interface{}) []string {
	s, ok := v.(string)
	if !ok {
		return []string{msgInvalidText}
	}
	return checkLength(f, s)
}

func checkEmail(f *Field, v interface{}) []string {
	s, ok := v.(string)
	if !ok || !emailRe.MatchString(s) {
		return []string{msgInvalidEmail}
	}
	return checkLength(f, s)
}

func checkNumber(f *Field, v interface{}) (errs []string) {
	n, ok := condition.Number(v)
	if !ok {
		return []string{msgInvalidNumber}
	}
	if f.MinValue != nil && n < *f.MinValue {
		errs = append(errs, fmt.Sprintf("Value must be at least %s", condition.String(*f.MinValue)))
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		errs = append(errs, fmt.Sprintf("Value must be at most %s", condition.String(*f.MaxValue)))
	}
	return
}

// DateLayout is the accepted layout for date fields.
const DateLayout = "2006-01-02"

// dateTimeLayouts are the accepted layouts for datetime fields.
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func checkDate(_ *Field, v interface{}) []string {
	s, ok := v.(string)
	if !ok {
		return []string{msgInvalidDate}
	}
	if _, err := time.Parse(DateLayout, strings.TrimSpace(s)); err != nil {
		return []string{msgInvalidDate}
	}
	return nil
}

func checkDateTime(_ *Field, v interface{}) []string {
	s, ok := v.(string)
	if !ok {
		return []string{msgInvalidDateTime}
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return []string{msgInvalidDateTime}
}

func checkBoolean(_ *Field, v interface{}) []string {
	if _, ok := Bool(v); !ok {
		return []string{msgInvalidBoolean}
	}
	return nil
}

func checkScalar(_ *Field, v interface{}) []string {
	switch v.(type) {
	case []interface{}, []string, map[string]interface{}:
		return []string{msgInvalidChoice}
	}
	return nil
}

func checkList(_ *Field, v interface{}) []string {
	switch v.(type) {
	case []interface{}, []string:
		return nil
	}
	return []string{msgInvalidList}
}

// Bool coerces common checkbox representations to a bool.
func Bool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
	}
	return false, false
}
