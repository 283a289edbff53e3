package languages

import (
	"strings"

	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
)

var cSymbols = map[string]parser.Kind{
	"function_definition":  parser.KindFunction,
	"struct_specifier":     parser.KindStruct,
	"union_specifier":      parser.KindStruct,
	"enum_specifier":       parser.KindEnum,
	"type_definition":      parser.KindType,
	"preproc_def":          parser.KindConstant,
	"preproc_function_def": parser.KindFunction,
}

func C() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:      "c",
		Language:  c.GetLanguage(),
		Symbols:   cSymbols,
		NameTypes: []string{"identifier", "type_identifier"},
		Classify: map[string]parser.Classifier{
			"struct_specifier": withBody(parser.KindStruct),
			"union_specifier":  withBody(parser.KindStruct),
			"enum_specifier":   withBody(parser.KindEnum),
		},
		Calls: map[string]string{
			"call_expression": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"preproc_include": includePath,
		},
	})
}

func Cpp() parser.Adapter {
	symbols := make(map[string]parser.Kind, len(cSymbols)+4)
	for k, v := range cSymbols {
		symbols[k] = v
	}
	symbols["class_specifier"] = parser.KindClass
	symbols["namespace_definition"] = parser.KindModule
	symbols["alias_declaration"] = parser.KindType
	symbols["concept_definition"] = parser.KindInterface

	return parser.NewTreeSitter(parser.Grammar{
		Name:      "cpp",
		Language:  cpp.GetLanguage(),
		Symbols:   symbols,
		NameTypes: []string{"identifier", "type_identifier", "namespace_identifier", "field_identifier"},
		Classify: map[string]parser.Classifier{
			"struct_specifier": withBody(parser.KindStruct),
			"union_specifier":  withBody(parser.KindStruct),
			"enum_specifier":   withBody(parser.KindEnum),
			"class_specifier":  withBody(parser.KindClass),
		},
		Refine: methodsInClasses,
		Calls: map[string]string{
			"call_expression": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"preproc_include":   includePath,
			"using_declaration": parser.ImportText("using", "namespace"),
		},
	})
}

// withBody only records struct/class/enum specifiers that carry a body, so
// `struct foo *p` uses are not mistaken for definitions.
func withBody(kind parser.Kind) parser.Classifier {
	return func(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
		if n.ChildByFieldName("body") == nil {
			return "", "", false
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return "", "", false
		}
		return kind, parser.LastSegment(name.Content(src)), true
	}
}

func includePath(n *sitter.Node, src []byte) []parser.Import {
	p := n.ChildByFieldName("path")
	if p == nil {
		return nil
	}
	path := strings.TrimSpace(p.Content(src))
	return []parser.Import{{Path: parser.Unquote(path), Line: int(n.StartPoint().Row) + 1}}
}

func CSharp() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "csharp",
		Language: csharp.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"class_declaration":       parser.KindClass,
			"interface_declaration":   parser.KindInterface,
			"struct_declaration":      parser.KindStruct,
			"enum_declaration":        parser.KindEnum,
			"record_declaration":      parser.KindClass,
			"method_declaration":      parser.KindMethod,
			"constructor_declaration": parser.KindMethod,
			"property_declaration":    parser.KindProperty,
			"namespace_declaration":   parser.KindModule,
			"delegate_declaration":    parser.KindType,
			"event_declaration":       parser.KindProperty,
		},
		NameTypes: []string{"identifier"},
		Calls: map[string]string{
			"invocation_expression":      "function",
			"object_creation_expression": "type",
		},
		Imports: map[string]parser.ImportFunc{
			"using_directive": parser.ImportText("using", "static", "global"),
		},
	})
}
