package languages

import (
	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
)

func Rust() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "rust",
		Language: rust.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"function_item":           parser.KindFunction,
			"function_signature_item": parser.KindFunction,
			"struct_item":             parser.KindStruct,
			"union_item":              parser.KindStruct,
			"enum_item":               parser.KindEnum,
			"trait_item":              parser.KindInterface,
			"type_item":               parser.KindType,
			"const_item":              parser.KindConstant,
			"static_item":             parser.KindVariable,
			"mod_item":                parser.KindModule,
			"macro_definition":        parser.KindFunction,
			"field_declaration":       parser.KindProperty,
			"enum_variant":            parser.KindConstant,
		},
		NameTypes: []string{"identifier", "type_identifier"},
		Classify: map[string]parser.Classifier{
			"impl_item": rustImpl,
		},
		Refine: func(n *sitter.Node, _ []byte, kind, parent parser.Kind) parser.Kind {
			if kind == parser.KindFunction && (parent == parser.KindClass || parent == parser.KindInterface) {
				return parser.KindMethod
			}
			return kind
		},
		Calls: map[string]string{
			"call_expression":  "function",
			"macro_invocation": "macro",
		},
		Imports: map[string]parser.ImportFunc{
			"use_declaration":          parser.ImportText("pub", "use"),
			"extern_crate_declaration": parser.ImportText("extern", "crate"),
		},
	})
}

// rustImpl records `impl Type` and `impl Trait for Type` blocks as classes
// named after the implementing type, so their functions become methods.
func rustImpl(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	t := n.ChildByFieldName("type")
	if t == nil {
		return "", "", false
	}
	return parser.KindClass, parser.CalleeName(t.Type(), t.Content(src)), true
}

func Swift() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "swift",
		Language: swift.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"class_declaration":     parser.KindClass,
			"protocol_declaration":  parser.KindInterface,
			"function_declaration":  parser.KindFunction,
			"init_declaration":      parser.KindMethod,
			"typealias_declaration": parser.KindType,
			"property_declaration":  parser.KindProperty,
		},
		NameTypes: []string{"type_identifier", "simple_identifier", "pattern"},
		Refine: func(n *sitter.Node, src []byte, kind, parent parser.Kind) parser.Kind {
			if n.Type() == "class_declaration" {
				if kw := n.ChildByFieldName("declaration_kind"); kw != nil {
					switch kw.Content(src) {
					case "struct":
						return parser.KindStruct
					case "enum":
						return parser.KindEnum
					case "extension":
						return parser.KindClass
					}
				}
			}
			return methodsInClasses(n, src, kind, parent)
		},
		Calls: map[string]string{
			"call_expression": "",
		},
		Imports: map[string]parser.ImportFunc{
			"import_declaration": parser.ImportText("import", "@testable"),
		},
	})
}
