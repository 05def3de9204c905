package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// conditionOperators is the closed set of predicate operators.
var conditionOperators = map[string]bool{
	"equals":       true,
	"not_equals":   true,
	"contains":     true,
	"greater_than": true,
	"less_than":    true,
	"exists":       true,
}

// ValidateEngine checks an engine definition for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the engine is valid.
func ValidateEngine(e *Engine) error {
	var ve ValidationError

	name := strings.TrimSpace(e.Name)
	if name == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	} else if len([]rune(name)) > 200 {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "must be 200 characters or fewer"})
	}

	if !e.Status.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "status",
			Message: fmt.Sprintf("invalid value %q", e.Status),
		})
	}

	if len(e.Nodes) == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "nodes", Message: "at least one node is required"})
	}

	seen := make(map[string]bool, len(e.Nodes))
	for i, n := range e.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if strings.TrimSpace(n.ID) == "" {
			ve.Errors = append(ve.Errors, FieldError{Field: field + ".id", Message: "is required"})
			continue
		}
		if seen[n.ID] {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
			})
		}
		seen[n.ID] = true
		if !n.Kind.IsValid() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid value %q", n.Kind),
			})
		}
		if n.Kind == KindCondition {
			if n.Condition == nil {
				ve.Errors = append(ve.Errors, FieldError{Field: field + ".condition", Message: "is required for condition nodes"})
			} else if !conditionOperators[n.Condition.Operator] {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   field + ".condition.operator",
					Message: fmt.Sprintf("invalid value %q", n.Condition.Operator),
				})
			}
		}
	}

	for i, edge := range e.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		if !seen[edge.Source] {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field + ".source",
				Message: fmt.Sprintf("unknown node %q", edge.Source),
			})
		}
		if !seen[edge.Target] {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field + ".target",
				Message: fmt.Sprintf("unknown node %q", edge.Target),
			})
		}
		if edge.Source == edge.Target && edge.Source != "" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field,
				Message: "self-referencing edge",
			})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
