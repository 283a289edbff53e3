package languages

import (
	"strings"

	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func Go() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "go",
		Language: golang.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"function_declaration": parser.KindFunction,
			"method_declaration":   parser.KindMethod,
			"type_spec":            parser.KindType,
			"type_alias":           parser.KindType,
			"const_spec":           parser.KindConstant,
			"var_spec":             parser.KindVariable,
			"field_declaration":    parser.KindProperty,
			"method_elem":          parser.KindMethod,
		},
		NameTypes: []string{"identifier", "field_identifier", "type_identifier"},
		Refine: func(n *sitter.Node, src []byte, kind, parent parser.Kind) parser.Kind {
			if n.Type() != "type_spec" {
				return kind
			}
			t := n.ChildByFieldName("type")
			if t == nil {
				return kind
			}
			switch t.Type() {
			case "struct_type":
				return parser.KindStruct
			case "interface_type":
				return parser.KindInterface
			}
			return kind
		},
		Calls: map[string]string{
			"call_expression": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"import_spec": goImport,
		},
	})
}

func goImport(n *sitter.Node, src []byte) []parser.Import {
	path := n.ChildByFieldName("path")
	if path == nil {
		return nil
	}
	imp := parser.Import{
		Path: strings.Trim(path.Content(src), "\"`"),
		Line: int(n.StartPoint().Row) + 1,
	}
	if alias := n.ChildByFieldName("name"); alias != nil {
		imp.Names = []string{alias.Content(src)}
	}
	return []parser.Import{imp}
}
