package rules

import (
	"strconv"
	"strings"

	"mercator-hq/agentgov/pkg/payload"
)

// CustomFunc is a named evaluator used by the custom operator. It receives the
// resolved field (found is false when the path did not resolve) and the
// condition being evaluated.
type CustomFunc func(actual payload.Value, found bool, cond Condition) bool

// evaluateOperator evaluates one condition against the resolved field value.
// Type mismatches and missing fields are a non-match, never an error.
func (e *Engine) evaluateOperator(cond *Condition, actual payload.Value, found bool) bool {
	switch cond.Operator {
	case OpEquals:
		return found && evaluateEqual(actual, cond.Value)

	case OpNotEquals:
		return !found || !evaluateEqual(actual, cond.Value)

	case OpContains:
		return found && evaluateContains(actual, cond.Value)

	case OpNotContains:
		return !found || !evaluateContains(actual, cond.Value)

	case OpGreaterThan:
		a, b, ok := toNumeric(actual, cond.Value)
		return found && ok && a > b

	case OpLessThan:
		a, b, ok := toNumeric(actual, cond.Value)
		return found && ok && a < b

	case OpIn:
		return found && evaluateIn(actual, cond.Value)

	case OpNotIn:
		return !found || !evaluateIn(actual, cond.Value)

	case OpMatchesRegex:
		if !found || actual.IsNull() {
			return false
		}
		re := cond.pattern
		if re == nil {
			pattern, _ := cond.Value.AsString()
			var err error
			if re, err = e.compilePattern(pattern); err != nil {
				return false
			}
		}
		return re.MatchString(actual.Text())

	case OpExists:
		return found && !actual.IsNull()

	case OpNotExists:
		return !found || actual.IsNull()

	case OpCustom:
		fn, ok := e.evaluator(cond.CustomEvaluator)
		if !ok {
			return false
		}
		return fn(actual, found, *cond)

	default:
		return false
	}
}

// evaluateEqual checks equality, comparing numerically when both sides are
// numeric (a numeric string equals the matching number).
func evaluateEqual(actual, expected payload.Value) bool {
	if a, b, ok := toNumeric(actual, expected); ok {
		return a == b
	}
	return actual.Equal(expected)
}

// evaluateContains checks substring containment for strings, element
// membership for lists and key presence for maps.
func evaluateContains(actual, expected payload.Value) bool {
	switch actual.Kind() {
	case payload.KindString:
		s, _ := actual.AsString()
		return strings.Contains(s, expected.Text())

	case payload.KindList:
		items, _ := actual.AsList()
		for _, item := range items {
			if evaluateEqual(item, expected) {
				return true
			}
		}
		return false

	case payload.KindMap:
		m, _ := actual.AsMap()
		key, ok := expected.AsString()
		if !ok {
			return false
		}
		_, present := m[key]
		return present

	default:
		return false
	}
}

// evaluateIn checks whether actual is one of the expected list's elements. A
// string expectation is treated as a substring haystack.
func evaluateIn(actual, expected payload.Value) bool {
	switch expected.Kind() {
	case payload.KindList:
		items, _ := expected.AsList()
		for _, item := range items {
			if evaluateEqual(actual, item) {
				return true
			}
		}
		return false

	case payload.KindString:
		haystack, _ := expected.AsString()
		needle, ok := actual.AsString()
		return ok && strings.Contains(haystack, needle)

	default:
		return false
	}
}

// toNumeric converts both values to float64 when both are numeric.
func toNumeric(actual, expected payload.Value) (float64, float64, bool) {
	a, ok := toFloat(actual)
	if !ok {
		return 0, 0, false
	}
	b, ok := toFloat(expected)
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

func toFloat(v payload.Value) (float64, bool) {
	switch v.Kind() {
	case payload.KindNumber:
		return v.AsNumber()
	case payload.KindString:
		s, _ := v.AsString()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
