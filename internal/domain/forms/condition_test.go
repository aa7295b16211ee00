package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	data := map[string]any{
		"type":     "business",
		"budget":   float64(5000),
		"tags":     []any{"vip", "newsletter"},
		"comments": "please call me back",
		"empty":    "",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{name: "equals match", cond: Condition{Field: "type", Operator: OpEquals, Value: "business"}, want: true},
		{name: "equals mismatch", cond: Condition{Field: "type", Operator: OpEquals, Value: "personal"}, want: false},
		{name: "equals absent field", cond: Condition{Field: "missing", Operator: OpEquals, Value: "x"}, want: false},
		{name: "equals cross-type numeric", cond: Condition{Field: "budget", Operator: OpEquals, Value: "5000"}, want: true},
		{name: "notEquals", cond: Condition{Field: "type", Operator: OpNotEquals, Value: "personal"}, want: true},
		{name: "notEquals absent field", cond: Condition{Field: "missing", Operator: OpNotEquals, Value: "x"}, want: true},
		{name: "contains substring", cond: Condition{Field: "comments", Operator: OpContains, Value: "call"}, want: true},
		{name: "contains list member", cond: Condition{Field: "tags", Operator: OpContains, Value: "vip"}, want: true},
		{name: "notContains", cond: Condition{Field: "tags", Operator: OpNotContains, Value: "spam"}, want: true},
		{name: "greaterThan numeric", cond: Condition{Field: "budget", Operator: OpGreaterThan, Value: 1000}, want: true},
		{name: "greaterThan string operand", cond: Condition{Field: "budget", Operator: OpGreaterThan, Value: "9999"}, want: false},
		{name: "lessThan", cond: Condition{Field: "budget", Operator: OpLessThan, Value: 10000}, want: true},
		{name: "exists", cond: Condition{Field: "type", Operator: OpExists}, want: true},
		{name: "exists absent", cond: Condition{Field: "missing", Operator: OpExists}, want: false},
		{name: "isEmpty blank string", cond: Condition{Field: "empty", Operator: OpIsEmpty}, want: true},
		{name: "isEmpty absent field", cond: Condition{Field: "missing", Operator: OpIsEmpty}, want: true},
		{name: "isEmpty populated", cond: Condition{Field: "type", Operator: OpIsEmpty}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvaluateUnknownOperator(t *testing.T) {
	_, err := Condition{Field: "type", Operator: "matches"}.Evaluate(map[string]any{"type": "x"})
	assert.Error(t, err)
}

func TestOperatorIsValid(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan, OpExists, OpIsEmpty} {
		assert.True(t, op.IsValid(), string(op))
	}
	assert.False(t, Operator("matches").IsValid())
}
