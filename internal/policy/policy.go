// Package policy holds the static capability and contract definitions the
// analyzer, pipeline, and refiner are configured with. A Set is built once
// at process start and passed by injection; it is never mutated afterwards.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anthropics/tool-foundry/internal/domain"
)

// Capability is the per-category allow/deny module policy.
type Capability struct {
	Allowed []string `yaml:"allowed"`
	Banned  []string `yaml:"banned"`
}

// Contract describes the expected output shape of a task type, checked by
// the contract-validation stage against the sandbox result.
type Contract struct {
	ID                 string         `yaml:"id"`
	OutputType         string         `yaml:"output_type"` // number | series | mapping
	Min                *float64       `yaml:"min"`
	Max                *float64       `yaml:"max"`
	MinLength          int            `yaml:"min_length"`
	ElementType        string         `yaml:"element_type"`
	RequiredKeys       []string       `yaml:"required_keys"`
	RepresentativeArgs map[string]any `yaml:"representative_args"`
}

// fileSchema is the on-disk YAML layout.
type fileSchema struct {
	Categories       map[string]Capability `yaml:"categories"`
	BannedModules    []string              `yaml:"banned_modules"`
	BannedCalls      []string              `yaml:"banned_calls"`
	BannedAttributes []string              `yaml:"banned_attributes"`
	Contracts        []Contract            `yaml:"contracts"`
}

// Set is the immutable policy bundle.
type Set struct {
	categories       map[domain.ToolCategory]Capability
	bannedModules    map[string]bool
	bannedCalls      map[string]bool
	bannedAttributes map[string]bool
	contracts        map[string]Contract
}

// Load reads a YAML policy file and validates it.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, domain.WrapFoundryError(domain.ErrPolicyInvalid.Code, "parse policy YAML", err)
	}
	return build(fs)
}

func build(fs fileSchema) (*Set, error) {
	s := &Set{
		categories:       make(map[domain.ToolCategory]Capability, len(fs.Categories)),
		bannedModules:    toSet(fs.BannedModules),
		bannedCalls:      toSet(fs.BannedCalls),
		bannedAttributes: toSet(fs.BannedAttributes),
		contracts:        make(map[string]Contract, len(fs.Contracts)),
	}

	var problems []string
	for name, cap := range fs.Categories {
		if len(cap.Allowed) == 0 {
			problems = append(problems, fmt.Sprintf("category %q has no allowed modules", name))
		}
		for _, m := range cap.Allowed {
			if s.bannedModules[m] {
				problems = append(problems, fmt.Sprintf("category %q allows globally banned module %q", name, m))
			}
		}
		s.categories[domain.ToolCategory(name)] = cap
	}

	for _, c := range fs.Contracts {
		if c.ID == "" {
			problems = append(problems, "contract with empty id")
			continue
		}
		switch c.OutputType {
		case "number", "series", "mapping":
		default:
			problems = append(problems, fmt.Sprintf("contract %q has unknown output type %q", c.ID, c.OutputType))
		}
		s.contracts[c.ID] = c
	}

	if len(problems) > 0 {
		return nil, domain.NewFoundryError(
			domain.ErrPolicyInvalid.Code,
			fmt.Sprintf("%s: %v", domain.ErrPolicyInvalid.Message, problems),
		)
	}
	return s, nil
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// Category returns the capability policy for a tool category.
func (s *Set) Category(cat domain.ToolCategory) (Capability, error) {
	c, ok := s.categories[cat]
	if !ok {
		return Capability{}, domain.NewFoundryError(
			domain.ErrCategoryUnknown.Code,
			fmt.Sprintf("%s: %q", domain.ErrCategoryUnknown.Message, cat),
		)
	}
	return c, nil
}

// ModuleAllowed reports whether a category may import the given top-level
// module. Global bans win over any category allow-list.
func (s *Set) ModuleAllowed(cat domain.ToolCategory, module string) (bool, error) {
	if s.bannedModules[module] {
		return false, nil
	}
	c, err := s.Category(cat)
	if err != nil {
		return false, err
	}
	for _, b := range c.Banned {
		if b == module {
			return false, nil
		}
	}
	for _, a := range c.Allowed {
		if a == module {
			return true, nil
		}
	}
	return false, nil
}

// BannedModule reports whether a module is banned in every category.
func (s *Set) BannedModule(module string) bool { return s.bannedModules[module] }

// BannedCall reports whether a call target is a banned dynamic-evaluation
// primitive.
func (s *Set) BannedCall(name string) bool { return s.bannedCalls[name] }

// BannedAttribute reports whether an attribute exposes the object model.
func (s *Set) BannedAttribute(name string) bool { return s.bannedAttributes[name] }

// Contract returns a contract definition by id.
func (s *Set) Contract(id string) (Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, domain.NewFoundryError(
			domain.ErrContractUnknown.Code,
			fmt.Sprintf("%s: %q", domain.ErrContractUnknown.Message, id),
		)
	}
	return c, nil
}
