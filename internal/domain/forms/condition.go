package forms

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is the closed set of comparison operators available to
// conditional mapping rules
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpExists      Operator = "exists"
	OpIsEmpty     Operator = "isEmpty"
)

// IsValid reports whether the operator is a known variant
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpExists, OpIsEmpty:
		return true
	default:
		return false
	}
}

// Condition is one comparison against a form data field
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Evaluate applies the condition to the form data. Unknown operators fail
// with an error so malformed rules surface instead of silently matching
// nothing.
func (c Condition) Evaluate(data map[string]any) (bool, error) {
	actual, present := data[c.Field]
	switch c.Operator {
	case OpEquals:
		return present && equalValues(actual, c.Value), nil
	case OpNotEquals:
		return !present || !equalValues(actual, c.Value), nil
	case OpContains:
		return present && containsValue(actual, c.Value), nil
	case OpNotContains:
		return !present || !containsValue(actual, c.Value), nil
	case OpGreaterThan:
		return present && compareValues(actual, c.Value) > 0, nil
	case OpLessThan:
		return present && compareValues(actual, c.Value) < 0, nil
	case OpExists:
		return present && actual != nil, nil
	case OpIsEmpty:
		return !present || isEmptyValue(actual), nil
	default:
		return false, fmt.Errorf("forms: unknown condition operator %q", c.Operator)
	}
}

// equalValues compares loosely: values of different dynamic types are
// compared through their string forms, matching how form data arrives from
// JSON payloads.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return stringify(a) == stringify(b)
}

func containsValue(actual, needle any) bool {
	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if equalValues(item, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == stringify(needle) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(stringify(actual), stringify(needle))
	}
}

// compareValues returns -1, 0 or 1. Numeric comparison is attempted first,
// falling back to lexicographic order.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
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
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		// Avoid "42" vs "42.000000" mismatches for whole JSON numbers
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
