// Package condition evaluates branch predicates against pipeline data.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quillworks/loom/internal/model"
)

// Result is the outcome of evaluating one condition.
type Result struct {
	FieldValue any  `json:"field_value"`
	Passed     bool `json:"passed"`
}

// Evaluate resolves the condition's field against the pipeline data and
// applies the operator. Field lookup precedence: the user_input envelope
// produced by an input node, then a node's structured data, then the raw
// top-level user input.
func Evaluate(cond *model.Condition, state *model.PipelineState) (Result, error) {
	if cond == nil {
		return Result{}, fmt.Errorf("condition is nil")
	}
	value := lookupField(cond.Field, state)
	passed, err := apply(cond.Operator, value, cond.Value)
	if err != nil {
		return Result{FieldValue: value}, err
	}
	return Result{FieldValue: value, Passed: passed}, nil
}

// Action returns the follow-on action the evaluated condition resolves to.
// Nil means continue.
func Action(cond *model.Condition, res Result) *model.ConditionAction {
	if res.Passed {
		return cond.PassAction
	}
	return cond.FailAction
}

// lookupField walks the lookup precedence chain for a field name.
func lookupField(field string, state *model.PipelineState) any {
	// 1. The sanitized envelope written by an input node.
	for _, out := range state.NodeOutputs {
		if out.Kind != model.KindInput || out.Content.Kind != model.ContentData {
			continue
		}
		if env, ok := out.Content.Structured["user_input"].(map[string]any); ok {
			if v, ok := env[field]; ok {
				return v
			}
		}
	}
	// 2. Structured data from any other node, latest wins through map
	// iteration being checked after envelope misses only.
	if state.LastNodeOutput != nil && state.LastNodeOutput.Content.Kind == model.ContentData {
		if v, ok := state.LastNodeOutput.Content.Structured[field]; ok {
			return v
		}
	}
	for _, out := range state.NodeOutputs {
		if out.Kind == model.KindInput || out.Content.Kind != model.ContentData {
			continue
		}
		if v, ok := out.Content.Structured[field]; ok {
			return v
		}
	}
	// 3. Raw top-level user input.
	if v, ok := state.UserInput[field]; ok {
		return v
	}
	return nil
}

func apply(operator string, fieldValue, expected any) (bool, error) {
	switch operator {
	case "equals":
		return equalish(fieldValue, expected), nil
	case "not_equals":
		return !equalish(fieldValue, expected), nil
	case "contains":
		return strings.Contains(
			strings.ToLower(asString(fieldValue)),
			strings.ToLower(asString(expected)),
		), nil
	case "greater_than":
		a, aok := asNumber(fieldValue)
		b, bok := asNumber(expected)
		return aok && bok && a > b, nil
	case "less_than":
		a, aok := asNumber(fieldValue)
		b, bok := asNumber(expected)
		return aok && bok && a < b, nil
	case "exists":
		return exists(fieldValue), nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// equalish compares strictly first, then falls back to case-insensitive
// string comparison so "Pro" matches "pro".
func equalish(a, b any) bool {
	if a == b {
		return true
	}
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
	}
	return strings.EqualFold(asString(a), asString(b))
}

func exists(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return n, err == nil
	}
	return 0, false
}
