// Package sanitize cleans untrusted user input before it enters a pipeline.
//
// Input arrives as an arbitrarily nested key/value map from the dashboard.
// Sanitization trims and truncates strings, strips control characters,
// bounds nesting depth and collection sizes, and drops values of types the
// pipeline has no use for. It never rejects a whole input for a single bad
// value; offending values are dropped or truncated.
package sanitize

import (
	"strings"
	"unicode"
)

const (
	// MaxStringLen bounds any single string value.
	MaxStringLen = 50_000

	// MaxKeyLen bounds map keys.
	MaxKeyLen = 200

	// MaxDepth bounds nesting; deeper structures are dropped.
	MaxDepth = 8

	// MaxCollection bounds map and slice sizes.
	MaxCollection = 500
)

// Map sanitizes a user-input map recursively. The result is a fresh map;
// the input is never mutated. A nil input yields an empty envelope, not
// nil: absence of input is not an error here.
func Map(in map[string]any) map[string]any {
	out, _ := cleanMap(in, 0)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// String sanitizes a single string value: control characters stripped,
// whitespace trimmed, length bounded.
func String(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	return s
}

func cleanMap(in map[string]any, depth int) (map[string]any, bool) {
	if in == nil || depth >= MaxDepth {
		return nil, false
	}
	out := make(map[string]any, len(in))
	n := 0
	for k, v := range in {
		if n >= MaxCollection {
			break
		}
		key := String(k)
		if key == "" {
			continue
		}
		if len(key) > MaxKeyLen {
			key = key[:MaxKeyLen]
		}
		cv, ok := cleanValue(v, depth+1)
		if !ok {
			continue
		}
		out[key] = cv
		n++
	}
	return out, true
}

func cleanValue(v any, depth int) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return String(t), true
	case bool:
		return t, true
	case int:
		return t, true
	case int64:
		return t, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case []any:
		if depth >= MaxDepth {
			return nil, false
		}
		out := make([]any, 0, len(t))
		for _, e := range t {
			if len(out) >= MaxCollection {
				break
			}
			ce, ok := cleanValue(e, depth+1)
			if !ok {
				continue
			}
			out = append(out, ce)
		}
		return out, true
	case map[string]any:
		return cleanMap(t, depth)
	default:
		// Channels, funcs, and other exotic types have no place in
		// pipeline input.
		return nil, false
	}
}
