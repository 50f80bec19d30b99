// internal/form/validate.go
//
// Formkit – Forms subsystem: record validation.
//
// Context
//   Validate maps a collected Record and the declared fields to a Result.
//   It is pure and performs no I/O.
//
// Ordering
//   •  Fields are visited in declaration order and every field is checked.
//   •  A field's rules run in declaration order; its first failing rule is
//      its only error, so an unfilled required field yields exactly one.
//   •  Non-requirement rules pass on empty values, so an unfilled optional
//      field never fails.
//   •  Callers display Result.First() only.  Showing one message at a time
//      is product behaviour shared by every form.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// -----------------------------------------------------------------------------
// Result types
// -----------------------------------------------------------------------------

// ErrorField describes one failed field.
type ErrorField struct {
	Name    string // field name
	Message string // user-facing message
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Errors []ErrorField
}

// First returns the message shown to the user, or "".
func (r Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Messages returns every message in field order.
func (r Result) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Message
	}
	return out
}

// Err returns nil for a valid result, otherwise a ValidationError.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return ValidationError{Fields: r.Errors}
}

// ValidationError wraps failed fields so callers can tell user input
// errors from system failures via errors.As / IsValidationError.
type ValidationError struct{ Fields []ErrorField }

func (ve ValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "form validation failed"
	}
	return "form validation failed: " + ve.Fields[0].Message
}

// IsValidationError reports whether err came from a failed Validate.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// minPhoneDigits applies when no normalizer judged a phone value.
const minPhoneDigits = 8

// Validate checks rec against fields.
func Validate(rec Record, fields []FieldSpec) Result {
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		labels[f.Name] = f.label()
	}

	var errs []ErrorField
	for _, f := range fields {
		v, ok := rec[f.Name]
		if !ok {
			v = Value{Kind: f.Kind}
		}
		for _, r := range f.Rules {
			if msg := check(f, r, v, rec, labels); msg != "" {
				errs = append(errs, ErrorField{Name: f.Name, Message: msg})
				break
			}
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// check evaluates one rule and returns a message on failure.
func check(f FieldSpec, r RuleSpec, v Value, rec Record, labels map[string]string) string {
	switch r.Rule {
	case RuleRequired:
		if v.Empty() {
			return pick(r, requiredMsg(f))
		}

	case RuleNonEmptyList, RuleOneOf:
		if len(v.List) == 0 {
			return pick(r, fmt.Sprintf("Please select at least one %s", lower(f.label())))
		}

	case RuleConditionalRequired:
		if triggered(rec[r.Field], r.When) && v.Empty() {
			return pick(r, fmt.Sprintf("Please specify %s", lower(f.label())))
		}

	case RuleEmail:
		if v.Text != "" && !emailRe.MatchString(v.Text) {
			return pick(r, "Please enter a valid email address")
		}

	case RuleMinLength:
		if v.Text != "" && utf8.RuneCountInString(v.Text) < r.N {
			return pick(r, fmt.Sprintf("Please provide at least %d characters for %s", r.N, lower(f.label())))
		}

	case RuleURL:
		if v.Text != "" && structs.Var(v.Text, "url") != nil {
			return pick(r, fmt.Sprintf("Please enter a valid URL for %s (include http:// or https://)", lower(f.label())))
		}

	case RuleDistinctFrom:
		other := rec[r.Field].Text
		if v.Text != "" && other != "" && strings.EqualFold(v.Text, other) {
			return pick(r, fmt.Sprintf("%s cannot be the same as %s", f.label(), lower(labels[r.Field])))
		}

	case RulePhone:
		if v.Text == "" {
			return ""
		}
		if v.PhoneValid != nil {
			if !*v.PhoneValid {
				return pick(r, "Please enter a valid phone number")
			}
			return ""
		}
		if digits(v.Text) < minPhoneDigits {
			return pick(r, "Please enter a valid phone number")
		}
	}
	return ""
}

// triggered reports whether other holds the sentinel when.
func triggered(other Value, when string) bool {
	switch other.Kind {
	case CheckboxGroupField:
		for _, s := range other.List {
			if s == when {
				return true
			}
		}
		return false
	case CheckboxField:
		return other.Bool && strings.EqualFold(when, "true")
	default:
		return other.Text == when
	}
}

// -----------------------------------------------------------------------------
// Message helpers
// -----------------------------------------------------------------------------

func pick(r RuleSpec, def string) string {
	if r.Message != "" {
		return r.Message
	}
	return def
}

func requiredMsg(f FieldSpec) string {
	switch f.Kind {
	case CheckboxGroupField:
		return fmt.Sprintf("Please select at least one %s", lower(f.label()))
	case FileField:
		return fmt.Sprintf("Please upload your %s", lower(f.label()))
	default:
		return fmt.Sprintf("%s is required", f.label())
	}
}

// lower lowercases the first rune unless the word looks like an acronym.
func lower(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size == len(s) {
		return strings.ToLower(s)
	}
	next, _ := utf8.DecodeRuneInString(s[size:])
	if unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
