package languages

import (
	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/elm"
	"github.com/smacker/go-tree-sitter/ocaml"
)

func OCaml() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "ocaml",
		Language: ocaml.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"module_binding":         parser.KindModule,
			"module_type_definition": parser.KindInterface,
			"type_binding":           parser.KindType,
			"class_binding":          parser.KindClass,
			"method_definition":      parser.KindMethod,
			"external":               parser.KindFunction,
		},
		NameTypes: []string{"module_name", "type_constructor", "value_name", "module_type_name", "class_name", "method_name"},
		Classify: map[string]parser.Classifier{
			"let_binding": ocamlLet,
		},
		Calls: map[string]string{
			"application_expression": "function",
		},
		Imports: map[string]parser.ImportFunc{
			"open_module": parser.ImportText("open", "open!"),
		},
	})
}

// ocamlLet records `let f x = ...` as a function and `let v = ...` as a
// variable. Destructuring patterns are skipped.
func ocamlLet(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	pat := n.ChildByFieldName("pattern")
	if pat == nil || pat.Type() != "value_name" {
		return "", "", false
	}
	if parser.ChildOfType(n, "parameter") != nil {
		return parser.KindFunction, pat.Content(src), true
	}
	if body := n.ChildByFieldName("body"); body != nil && body.Type() == "fun_expression" {
		return parser.KindFunction, pat.Content(src), true
	}
	return parser.KindVariable, pat.Content(src), true
}

func Elm() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "elm",
		Language: elm.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"type_declaration":       parser.KindType,
			"type_alias_declaration": parser.KindType,
			"port_annotation":        parser.KindFunction,
		},
		NameTypes: []string{"upper_case_identifier", "lower_case_identifier"},
		Classify: map[string]parser.Classifier{
			"value_declaration": elmValue,
		},
		Calls: map[string]string{
			"function_call_expr": "target",
		},
		Imports: map[string]parser.ImportFunc{
			"import_clause": parser.ImportText("import"),
		},
	})
}

func elmValue(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	left := parser.ChildOfType(n, "function_declaration_left")
	if left == nil {
		return "", "", false
	}
	id := parser.ChildOfType(left, "lower_case_identifier")
	if id == nil {
		return "", "", false
	}
	return parser.KindFunction, id.Content(src), true
}
