package contract

import (
	"strings"
	"testing"

	"github.com/anthropics/tool-foundry/internal/policy"
)

func floatPtr(f float64) *float64 { return &f }

func TestValidate_Number(t *testing.T) {
	v := &Validator{}
	c := policy.Contract{ID: "rsi_value", OutputType: "number", Min: floatPtr(0), Max: floatPtr(100)}

	tests := []struct {
		name   string
		result any
		wantOK bool
	}{
		{"in range", 55.3, true},
		{"lower bound", 0.0, true},
		{"upper bound", 100.0, true},
		{"below range", -1.0, false},
		{"above range", 120.5, false},
		{"wrong type", "55", false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reasons := v.Validate(tt.result, c)
			if ok != tt.wantOK {
				t.Errorf("Validate(%v) ok = %v, reasons = %v", tt.result, ok, reasons)
			}
			if !ok && len(reasons) == 0 {
				t.Error("failure must carry at least one reason")
			}
		})
	}
}

func TestValidate_Series(t *testing.T) {
	v := &Validator{}
	c := policy.Contract{ID: "series", OutputType: "series", ElementType: "number", MinLength: 3}

	ok, _ := v.Validate([]any{1.0, 2.0, 3.5}, c)
	if !ok {
		t.Error("numeric series should pass")
	}

	// Warm-up nulls are part of the shape, not a breach.
	ok, _ = v.Validate([]any{nil, nil, 14.2}, c)
	if !ok {
		t.Error("series with leading nulls should pass")
	}

	ok, reasons := v.Validate([]any{1.0, 2.0}, c)
	if ok {
		t.Error("short series should fail")
	}
	if len(reasons) == 0 || !strings.Contains(reasons[0], "length") {
		t.Errorf("reasons = %v, want length complaint", reasons)
	}

	ok, reasons = v.Validate([]any{1.0, "two", 3.0}, c)
	if ok {
		t.Error("mixed-type series should fail")
	}
	if len(reasons) == 0 || !strings.Contains(reasons[0], "element 1") {
		t.Errorf("reasons = %v, want element 1 complaint", reasons)
	}

	if ok, _ = v.Validate(map[string]any{}, c); ok {
		t.Error("mapping should not satisfy a series contract")
	}
}

func TestValidate_Mapping(t *testing.T) {
	v := &Validator{}
	c := policy.Contract{ID: "quote", OutputType: "mapping", RequiredKeys: []string{"symbol", "price"}}

	ok, _ := v.Validate(map[string]any{"symbol": "AAPL", "price": 187.2, "extra": true}, c)
	if !ok {
		t.Error("mapping with required keys should pass")
	}

	ok, reasons := v.Validate(map[string]any{"symbol": "AAPL"}, c)
	if ok {
		t.Error("mapping missing a required key should fail")
	}
	if len(reasons) != 1 || !strings.Contains(reasons[0], `"price"`) {
		t.Errorf("reasons = %v, want missing price", reasons)
	}
}

func TestValidate_SeriesRangeApplied(t *testing.T) {
	v := &Validator{}
	c := policy.Contract{OutputType: "series", ElementType: "number", Min: floatPtr(0), Max: floatPtr(100)}

	ok, reasons := v.Validate([]any{12.0, 101.0}, c)
	if ok {
		t.Error("out-of-range element should fail")
	}
	if len(reasons) == 0 || !strings.Contains(reasons[0], "above maximum") {
		t.Errorf("reasons = %v, want above-maximum complaint", reasons)
	}
}
