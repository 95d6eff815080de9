// Package contract checks a sandbox result against the declared output
// contract for its task type: the value's shape, element types, numeric
// range, and required keys.
package contract

import (
	"fmt"

	"github.com/anthropics/tool-foundry/internal/policy"
)

// Validator inspects decoded JSON results for contract breaches. It
// returns whether the result conforms and the list of reasons when it
// does not.
type Validator struct{}

// Validate checks result against c. A nil result never conforms.
func (v *Validator) Validate(result any, c policy.Contract) (ok bool, reasons []string) {
	if result == nil {
		return false, []string{"result is null"}
	}

	switch c.OutputType {
	case "number":
		reasons = v.checkNumber(result, c)
	case "series":
		reasons = v.checkSeries(result, c)
	case "mapping":
		reasons = v.checkMapping(result, c)
	default:
		reasons = []string{fmt.Sprintf("contract %q has unsupported output type %q", c.ID, c.OutputType)}
	}
	return len(reasons) == 0, reasons
}

func (v *Validator) checkNumber(result any, c policy.Contract) []string {
	n, ok := asNumber(result)
	if !ok {
		return []string{fmt.Sprintf("expected a number, got %T", result)}
	}
	return v.checkRange(n, c, "result")
}

func (v *Validator) checkSeries(result any, c policy.Contract) []string {
	series, ok := result.([]any)
	if !ok {
		return []string{fmt.Sprintf("expected a series, got %T", result)}
	}

	var reasons []string
	if len(series) < c.MinLength {
		reasons = append(reasons, fmt.Sprintf("series length %d below minimum %d", len(series), c.MinLength))
	}

	for i, el := range series {
		// Null elements are tolerated: indicator series carry warm-up
		// gaps before enough data points exist.
		if el == nil {
			continue
		}
		if c.ElementType == "number" {
			n, ok := asNumber(el)
			if !ok {
				reasons = append(reasons, fmt.Sprintf("element %d: expected a number, got %T", i, el))
				continue
			}
			reasons = append(reasons, v.checkRange(n, c, fmt.Sprintf("element %d", i))...)
		}
	}
	return reasons
}

func (v *Validator) checkMapping(result any, c policy.Contract) []string {
	m, ok := result.(map[string]any)
	if !ok {
		return []string{fmt.Sprintf("expected a mapping, got %T", result)}
	}

	var reasons []string
	for _, key := range c.RequiredKeys {
		if _, present := m[key]; !present {
			reasons = append(reasons, fmt.Sprintf("required key %q missing", key))
		}
	}
	return reasons
}

func (v *Validator) checkRange(n float64, c policy.Contract, where string) []string {
	var reasons []string
	if c.Min != nil && n < *c.Min {
		reasons = append(reasons, fmt.Sprintf("%s: value %g below minimum %g", where, n, *c.Min))
	}
	if c.Max != nil && n > *c.Max {
		reasons = append(reasons, fmt.Sprintf("%s: value %g above maximum %g", where, n, *c.Max))
	}
	return reasons
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
