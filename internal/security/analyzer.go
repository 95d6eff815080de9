// Package security implements the capability security analyzer: a static
// scan of untrusted Python source against the capability policy. Analysis
// is a pure function of (source, category) and must pass before any
// sandbox process is spawned.
package security

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/policy"
)

// Analyzer statically checks candidate source against a policy set.
type Analyzer struct {
	policy *policy.Set
}

// NewAnalyzer creates an analyzer over an immutable policy set.
func NewAnalyzer(p *policy.Set) *Analyzer {
	return &Analyzer{policy: p}
}

// Analyze parses source and walks imports, call expressions, and attribute
// accesses. It returns nil when the source is admissible for the category,
// or a security violation naming the first offending construct. A source
// that fails to parse is a violation, not a crash.
func (a *Analyzer) Analyze(ctx context.Context, source []byte, category domain.ToolCategory) error {
	if _, err := a.policy.Category(category); err != nil {
		return err
	}

	// tree-sitter parsers are not safe for concurrent use; one per call
	// keeps Analyze a pure function.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return domain.WrapFoundryError(domain.ErrSyntaxInvalid.Code, domain.ErrSyntaxInvalid.Message, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return domain.NewFoundryError(domain.ErrSyntaxInvalid.Code, "source failed to parse as Python")
	}

	return a.walk(root, source, category)
}

func (a *Analyzer) walk(node *sitter.Node, source []byte, category domain.ToolCategory) error {
	switch node.Type() {
	case "import_statement":
		if err := a.checkImport(node, source, category); err != nil {
			return err
		}
	case "import_from_statement":
		if err := a.checkImportFrom(node, source, category); err != nil {
			return err
		}
	case "call":
		if err := a.checkCall(node, source); err != nil {
			return err
		}
	case "attribute":
		if err := a.checkAttribute(node, source); err != nil {
			return err
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		if err := a.walk(node.NamedChild(i), source, category); err != nil {
			return err
		}
	}
	return nil
}

// checkImport handles `import x`, `import x.y`, and `import x as y`.
func (a *Analyzer) checkImport(node *sitter.Node, source []byte, category domain.ToolCategory) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var dotted *sitter.Node
		switch child.Type() {
		case "dotted_name":
			dotted = child
		case "aliased_import":
			dotted = child.ChildByFieldName("name")
		default:
			continue
		}
		if dotted == nil {
			continue
		}
		if err := a.checkModule(text(dotted, source), category); err != nil {
			return err
		}
	}
	return nil
}

// checkImportFrom handles `from x.y import z`.
func (a *Analyzer) checkImportFrom(node *sitter.Node, source []byte, category domain.ToolCategory) error {
	mod := node.ChildByFieldName("module_name")
	if mod == nil {
		return nil
	}
	// Relative imports have no top-level module to check; the sandbox has
	// no package context for them to resolve against anyway.
	if mod.Type() == "relative_import" {
		return nil
	}
	return a.checkModule(text(mod, source), category)
}

func (a *Analyzer) checkModule(dotted string, category domain.ToolCategory) error {
	top := dotted
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		top = dotted[:i]
	}
	if a.policy.BannedModule(top) {
		return domain.NewSecurityViolation(fmt.Sprintf("module %q is banned in every category", top))
	}
	allowed, err := a.policy.ModuleAllowed(category, top)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.NewSecurityViolation(fmt.Sprintf("module %q is not allowed for category %q", top, category))
	}
	return nil
}

// checkCall rejects dynamic-evaluation primitives whether invoked bare
// (eval(...)) or through an attribute (something.eval(...)).
func (a *Analyzer) checkCall(node *sitter.Node, source []byte) error {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	var name string
	switch fn.Type() {
	case "identifier":
		name = text(fn, source)
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return nil
		}
		name = text(attr, source)
	default:
		return nil
	}
	if a.policy.BannedCall(name) {
		return domain.NewSecurityViolation(fmt.Sprintf("call to %q is banned", name))
	}
	return nil
}

// checkAttribute rejects access to introspection attributes that expose
// the object model.
func (a *Analyzer) checkAttribute(node *sitter.Node, source []byte) error {
	attr := node.ChildByFieldName("attribute")
	if attr == nil {
		return nil
	}
	name := text(attr, source)
	if a.policy.BannedAttribute(name) {
		return domain.NewSecurityViolation(fmt.Sprintf("attribute %q is banned", name))
	}
	return nil
}

func text(n *sitter.Node, source []byte) string {
	return string(source[n.StartByte():n.EndByte()])
}
