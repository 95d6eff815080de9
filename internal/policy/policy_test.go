package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/tool-foundry/internal/domain"
)

func TestDefault_GlobalBansWinOverAllowList(t *testing.T) {
	s := Default()

	tests := []struct {
		category domain.ToolCategory
		module   string
		want     bool
	}{
		{domain.CategoryCalculation, "math", true},
		{domain.CategoryCalculation, "pandas", true},
		{domain.CategoryCalculation, "os", false},
		{domain.CategoryCalculation, "subprocess", false},
		{domain.CategoryCalculation, "yfinance", false}, // not in calc allow-list
		{domain.CategoryFetch, "yfinance", true},
		{domain.CategoryFetch, "pickle", false},
		{domain.CategoryComposite, "socket", false},
	}

	for _, tt := range tests {
		got, err := s.ModuleAllowed(tt.category, tt.module)
		if err != nil {
			t.Fatalf("ModuleAllowed(%s, %s): %v", tt.category, tt.module, err)
		}
		if got != tt.want {
			t.Errorf("ModuleAllowed(%s, %s) = %v, want %v", tt.category, tt.module, got, tt.want)
		}
	}
}

func TestDefault_BannedCallsAndAttributes(t *testing.T) {
	s := Default()

	for _, call := range []string{"eval", "exec", "compile", "__import__", "getattr", "globals"} {
		if !s.BannedCall(call) {
			t.Errorf("BannedCall(%q) = false, want true", call)
		}
	}
	if s.BannedCall("len") {
		t.Error("len should not be banned")
	}

	for _, attr := range []string{"__class__", "__mro__", "__subclasses__", "__globals__"} {
		if !s.BannedAttribute(attr) {
			t.Errorf("BannedAttribute(%q) = false, want true", attr)
		}
	}
	if s.BannedAttribute("shape") {
		t.Error("shape should not be banned")
	}
}

func TestSet_UnknownCategory(t *testing.T) {
	s := Default()

	_, err := s.Category(domain.ToolCategory("mystery"))
	if !errors.Is(err, domain.ErrCategoryUnknown) {
		t.Errorf("err = %v, want ErrCategoryUnknown", err)
	}
}

func TestSet_Contracts(t *testing.T) {
	s := Default()

	c, err := s.Contract("indicator_series")
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	if c.OutputType != "series" || c.ElementType != "number" {
		t.Errorf("contract = %+v, want number series", c)
	}
	if len(c.RepresentativeArgs) == 0 {
		t.Error("representative args missing")
	}

	_, err = s.Contract("nope")
	if !errors.Is(err, domain.ErrContractUnknown) {
		t.Errorf("err = %v, want ErrContractUnknown", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
categories:
  calculation:
    allowed: [math, statistics]
banned_modules: [os, subprocess]
banned_calls: [eval, exec]
banned_attributes: ["__class__"]
contracts:
  - id: simple_number
    output_type: number
    min: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ok, err := s.ModuleAllowed(domain.CategoryCalculation, "math")
	if err != nil || !ok {
		t.Errorf("ModuleAllowed(math) = %v, %v, want true", ok, err)
	}
	if !s.BannedModule("os") {
		t.Error("os should be globally banned")
	}
	c, err := s.Contract("simple_number")
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	if c.Min == nil || *c.Min != 0 {
		t.Errorf("Min = %v, want 0", c.Min)
	}
}

func TestLoad_RejectsAllowedGlobalBan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
categories:
  calculation:
    allowed: [os]
banned_modules: [os]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, domain.ErrPolicyInvalid) {
		t.Errorf("err = %v, want ErrPolicyInvalid", err)
	}
}
