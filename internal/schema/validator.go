// Package schema validates constructed responses against a descriptor
// before they leave the system. All violations are reported, not just
// the first.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/trustgate/trustgate/internal/safety"
)

// Descriptor names the fields a response must satisfy.
type Descriptor struct {
	Required         []string // fields that must be present
	ConfidenceFields []string // numeric, within [0,1]
	ActionTypeFields []string // values must be allow-listed action types
	ListFields       []string // values must actually be lists
}

// Validator checks response maps against a descriptor. Action type
// checks consult the safety gate's allow-list.
type Validator struct {
	gate *safety.Gate
}

// NewValidator creates a validator backed by the given gate.
func NewValidator(gate *safety.Gate) *Validator {
	return &Validator{gate: gate}
}

// Validate returns whether the response satisfies the descriptor, plus
// every violation found.
func (v *Validator) Validate(resp map[string]any, d Descriptor) (bool, []string) {
	var errs []string

	for _, field := range d.Required {
		if _, ok := resp[field]; !ok {
			errs = append(errs, fmt.Sprintf("required field %q is missing", field))
		}
	}

	for _, field := range d.ConfidenceFields {
		val, ok := resp[field]
		if !ok {
			continue
		}
		f, ok := toFloat(val)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %q is not numeric", field))
			continue
		}
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Sprintf("field %q = %v is outside [0,1]", field, f))
		}
	}

	for _, field := range d.ActionTypeFields {
		val, ok := resp[field]
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %q is not a string action type", field))
			continue
		}
		if _, allowed := v.gate.PolicyFor(safety.ActionType(s)); !allowed {
			errs = append(errs, fmt.Sprintf("field %q has action type %q outside the allow-list", field, s))
		}
	}

	for _, field := range d.ListFields {
		val, ok := resp[field]
		if !ok {
			continue
		}
		if !isList(val) {
			errs = append(errs, fmt.Sprintf("field %q is not a list", field))
		}
	}

	return len(errs) == 0, errs
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []map[string]any:
		return true
	default:
		return false
	}
}
