package languages

import (
	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

var ecmaSymbols = map[string]parser.Kind{
	"function_declaration":           parser.KindFunction,
	"generator_function_declaration": parser.KindFunction,
	"class_declaration":              parser.KindClass,
	"method_definition":              parser.KindMethod,
}

var ecmaClassify = map[string]parser.Classifier{
	"variable_declarator": ecmaVariable,
}

var tsSymbols = map[string]parser.Kind{
	"interface_declaration":      parser.KindInterface,
	"type_alias_declaration":     parser.KindType,
	"enum_declaration":           parser.KindEnum,
	"abstract_class_declaration": parser.KindClass,
	"module":                     parser.KindModule,
	"internal_module":            parser.KindModule,
	"method_signature":           parser.KindMethod,
	"public_field_definition":    parser.KindProperty,
	"function_signature":         parser.KindFunction,
}

var ecmaCalls = map[string]string{
	"call_expression": "function",
	"new_expression":  "constructor",
}

var ecmaImports = map[string]parser.ImportFunc{
	"import_statement": ecmaImport,
	"export_statement": ecmaReexport,
}

func JavaScript() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:        "javascript",
		Language:    javascript.GetLanguage(),
		Symbols:     ecmaSymbols,
		NameTypes:   []string{"identifier", "property_identifier"},
		Classify:    ecmaClassify,
		Calls:       ecmaCalls,
		Imports:     ecmaImports,
		ImportCalls: map[string]bool{"require": true},
	})
}

func TypeScript() parser.Adapter {
	return typeScriptGrammar("typescript", typescript.GetLanguage())
}

func TSX() parser.Adapter {
	return typeScriptGrammar("tsx", tsx.GetLanguage())
}

func typeScriptGrammar(name string, lang *sitter.Language) parser.Adapter {
	symbols := make(map[string]parser.Kind, len(ecmaSymbols)+len(tsSymbols))
	for k, v := range ecmaSymbols {
		symbols[k] = v
	}
	for k, v := range tsSymbols {
		symbols[k] = v
	}
	return parser.NewTreeSitter(parser.Grammar{
		Name:        name,
		Language:    lang,
		Symbols:     symbols,
		NameTypes:   []string{"identifier", "type_identifier", "property_identifier"},
		Classify:    ecmaClassify,
		Calls:       ecmaCalls,
		Imports:     ecmaImports,
		ImportCalls: map[string]bool{"require": true},
	})
}

// ecmaVariable keeps declarators that bind a function or class anywhere,
// and plain bindings only at module level.
func ecmaVariable(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return "", "", false
	}
	if v := n.ChildByFieldName("value"); v != nil {
		switch v.Type() {
		case "arrow_function", "function", "function_expression", "generator_function":
			return parser.KindFunction, name.Content(src), true
		case "class":
			return parser.KindClass, name.Content(src), true
		}
	}
	decl := n.Parent()
	if decl == nil {
		return "", "", false
	}
	scope := decl.Parent()
	if scope == nil || (scope.Type() != "program" && scope.Type() != "export_statement") {
		return "", "", false
	}
	if kw := decl.Child(0); kw != nil && kw.Type() == "const" {
		return parser.KindConstant, name.Content(src), true
	}
	return parser.KindVariable, name.Content(src), true
}

func ecmaImport(n *sitter.Node, src []byte) []parser.Import {
	source := n.ChildByFieldName("source")
	if source == nil {
		return nil
	}
	imp := parser.Import{Path: parser.Unquote(source.Content(src)), Line: int(n.StartPoint().Row) + 1}
	if clause := parser.ChildOfType(n, "import_clause"); clause != nil {
		collectIdentifiers(clause, src, &imp.Names)
	}
	return []parser.Import{imp}
}

func ecmaReexport(n *sitter.Node, src []byte) []parser.Import {
	source := n.ChildByFieldName("source")
	if source == nil {
		return nil
	}
	return []parser.Import{{Path: parser.Unquote(source.Content(src)), Line: int(n.StartPoint().Row) + 1}}
}

func collectIdentifiers(n *sitter.Node, src []byte, out *[]string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		if c.Type() == "identifier" {
			*out = append(*out, c.Content(src))
			continue
		}
		if c.Type() == "import_specifier" {
			if name := c.ChildByFieldName("name"); name != nil {
				*out = append(*out, name.Content(src))
			}
			continue
		}
		collectIdentifiers(c, src, out)
	}
}
