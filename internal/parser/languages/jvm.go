package languages

import (
	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/groovy"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/scala"
)

func Java() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "java",
		Language: java.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"class_declaration":           parser.KindClass,
			"interface_declaration":       parser.KindInterface,
			"enum_declaration":            parser.KindEnum,
			"record_declaration":          parser.KindClass,
			"annotation_type_declaration": parser.KindInterface,
			"method_declaration":          parser.KindMethod,
			"constructor_declaration":     parser.KindMethod,
			"enum_constant":               parser.KindConstant,
		},
		NameTypes: []string{"identifier"},
		Classify: map[string]parser.Classifier{
			"field_declaration": javaField,
		},
		Calls: map[string]string{
			"method_invocation":          "name",
			"object_creation_expression": "type",
		},
		Imports: map[string]parser.ImportFunc{
			"import_declaration": parser.ImportText("import", "static"),
		},
	})
}

// javaField names a field after its first declarator.
func javaField(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	d := n.ChildByFieldName("declarator")
	if d == nil {
		return "", "", false
	}
	name := d.ChildByFieldName("name")
	if name == nil {
		return "", "", false
	}
	return parser.KindProperty, name.Content(src), true
}

func Kotlin() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "kotlin",
		Language: kotlin.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"class_declaration":    parser.KindClass,
			"object_declaration":   parser.KindClass,
			"function_declaration": parser.KindFunction,
			"type_alias":           parser.KindType,
		},
		NameTypes: []string{"type_identifier", "simple_identifier"},
		Classify: map[string]parser.Classifier{
			"property_declaration": kotlinProperty,
		},
		Refine: methodsInClasses,
		Calls: map[string]string{
			"call_expression": "",
		},
		Imports: map[string]parser.ImportFunc{
			"import_header": parser.ImportText("import"),
		},
	})
}

func kotlinProperty(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	v := parser.DescendantOfType(n, "variable_declaration")
	if v == nil {
		return "", "", false
	}
	id := parser.ChildOfType(v, "simple_identifier")
	if id == nil {
		return "", "", false
	}
	return parser.KindProperty, id.Content(src), true
}

func Scala() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "scala",
		Language: scala.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"class_definition":     parser.KindClass,
			"object_definition":    parser.KindModule,
			"trait_definition":     parser.KindInterface,
			"function_definition":  parser.KindFunction,
			"function_declaration": parser.KindFunction,
			"type_definition":      parser.KindType,
			"enum_definition":      parser.KindEnum,
		},
		NameTypes: []string{"identifier"},
		Refine:    methodsInClasses,
		Calls: map[string]string{
			"call_expression": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"import_declaration": parser.ImportText("import"),
		},
	})
}

func Groovy() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:      "groovy",
		Language:  groovy.GetLanguage(),
		Symbols:   map[string]parser.Kind{},
		NameTypes: []string{"identifier"},
		Refine:    methodsInClasses,
	})
}
