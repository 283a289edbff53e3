package languages

import (
	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func Python() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "python",
		Language: python.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"function_definition": parser.KindFunction,
			"class_definition":    parser.KindClass,
		},
		NameTypes: []string{"identifier"},
		Refine:    methodsInClasses,
		Calls: map[string]string{
			"call": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"import_statement":      pythonImport,
			"import_from_statement": pythonFromImport,
		},
	})
}

// methodsInClasses turns functions defined directly in a class body into
// methods.
func methodsInClasses(_ *sitter.Node, _ []byte, kind, parent parser.Kind) parser.Kind {
	if kind == parser.KindFunction && (parent == parser.KindClass || parent == parser.KindStruct ||
		parent == parser.KindInterface) {
		return parser.KindMethod
	}
	return kind
}

func pythonImport(n *sitter.Node, src []byte) []parser.Import {
	line := int(n.StartPoint().Row) + 1
	var out []parser.Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			out = append(out, parser.Import{Path: c.Content(src), Line: line})
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				imp := parser.Import{Path: name.Content(src), Line: line}
				if alias := c.ChildByFieldName("alias"); alias != nil {
					imp.Names = []string{alias.Content(src)}
				}
				out = append(out, imp)
			}
		}
	}
	return out
}

func pythonFromImport(n *sitter.Node, src []byte) []parser.Import {
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return nil
	}
	imp := parser.Import{Path: mod.Content(src), Line: int(n.StartPoint().Row) + 1}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			imp.Names = append(imp.Names, c.Content(src))
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Names = append(imp.Names, name.Content(src))
			}
		case "wildcard_import":
			imp.Names = append(imp.Names, "*")
		}
	}
	return []parser.Import{imp}
}
