package languages

import (
	"strings"

	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/elixir"
	"github.com/smacker/go-tree-sitter/lua"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/ruby"
)

func Ruby() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "ruby",
		Language: ruby.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"method":           parser.KindFunction,
			"singleton_method": parser.KindMethod,
			"class":            parser.KindClass,
			"module":           parser.KindModule,
		},
		NameTypes: []string{"identifier", "constant"},
		Classify: map[string]parser.Classifier{
			"assignment": rubyConstant,
		},
		Refine: func(n *sitter.Node, src []byte, kind, parent parser.Kind) parser.Kind {
			if kind == parser.KindFunction && (parent == parser.KindClass || parent == parser.KindModule) {
				return parser.KindMethod
			}
			return kind
		},
		Calls: map[string]string{
			"call": "method",
		},
		ImportCalls: map[string]bool{"require": true, "require_relative": true, "load": true},
	})
}

// rubyConstant records `FOO = ...` assignments.
func rubyConstant(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "constant" {
		return "", "", false
	}
	return parser.KindConstant, left.Content(src), true
}

func PHP() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "php",
		Language: php.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"function_definition":   parser.KindFunction,
			"class_declaration":     parser.KindClass,
			"interface_declaration": parser.KindInterface,
			"trait_declaration":     parser.KindInterface,
			"enum_declaration":      parser.KindEnum,
			"method_declaration":    parser.KindMethod,
			"namespace_definition":  parser.KindModule,
			"const_element":         parser.KindConstant,
		},
		NameTypes: []string{"name"},
		Calls: map[string]string{
			"function_call_expression":   "function",
			"member_call_expression":     "name",
			"scoped_call_expression":     "name",
			"object_creation_expression": "",
		},
		Imports: map[string]parser.ImportFunc{
			"namespace_use_declaration": parser.ImportText("use", "function", "const"),
		},
		ImportCalls: map[string]bool{"require": true, "require_once": true, "include": true, "include_once": true},
	})
}

func Lua() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "lua",
		Language: lua.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"function_declaration": luaFunction,
		},
		NameTypes: []string{"identifier"},
		Calls: map[string]string{
			"function_call": "name",
		},
		ImportCalls: map[string]bool{"require": true, "dofile": true},
	})
}

// luaFunction handles `function M.foo()` and `function obj:bar()`, naming
// the symbol after the last segment.
func luaFunction(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return "", "", false
	}
	text := name.Content(src)
	if strings.ContainsAny(text, ".:") {
		return parser.KindMethod, parser.LastSegment(text), true
	}
	return parser.KindFunction, text, true
}

func Bash() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "bash",
		Language: bash.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"function_definition": parser.KindFunction,
		},
		NameTypes: []string{"word"},
		Classify: map[string]parser.Classifier{
			"variable_assignment": bashExport,
		},
		Calls: map[string]string{
			"command": "name",
		},
		ImportCalls: map[string]bool{"source": true},
	})
}

// bashExport records top-level assignments in upper case, which by
// convention are configuration constants.
func bashExport(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return "", "", false
	}
	text := name.Content(src)
	if text != strings.ToUpper(text) {
		return "", "", false
	}
	if p := n.Parent(); p == nil || (p.Type() != "program" && p.Type() != "declaration_command") {
		return "", "", false
	}
	return parser.KindConstant, text, true
}

var elixirDefs = map[string]parser.Kind{
	"def":         parser.KindFunction,
	"defp":        parser.KindFunction,
	"defmacro":    parser.KindFunction,
	"defmacrop":   parser.KindFunction,
	"defguard":    parser.KindFunction,
	"defdelegate": parser.KindFunction,
	"defmodule":   parser.KindModule,
	"defprotocol": parser.KindInterface,
	"defimpl":     parser.KindClass,
	"defstruct":   parser.KindStruct,
}

func Elixir() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "elixir",
		Language: elixir.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"call": elixirDef,
		},
		Calls: map[string]string{
			"call": "target",
		},
		Imports: map[string]parser.ImportFunc{
			"call": elixirImport,
		},
		ImportCalls: map[string]bool{"alias": true, "import": true, "use": true, "require": true},
	})
}

// elixirDef recognises definition macros (def, defmodule, ...). Everything
// else falls through to call extraction.
func elixirDef(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	target := n.ChildByFieldName("target")
	if target == nil {
		return "", "", false
	}
	kind, ok := elixirDefs[target.Content(src)]
	if !ok {
		return "", "", false
	}
	args := parser.ChildOfType(n, "arguments")
	if args == nil || args.NamedChildCount() == 0 {
		if kind == parser.KindStruct {
			return kind, "__struct__", true
		}
		return "", "", false
	}
	first := args.NamedChild(0)
	switch first.Type() {
	case "call":
		if t := first.ChildByFieldName("target"); t != nil {
			return kind, t.Content(src), true
		}
	case "binary_operator":
		// def foo(x) when is_integer(x)
		if left := first.ChildByFieldName("left"); left != nil {
			if t := left.ChildByFieldName("target"); t != nil {
				return kind, t.Content(src), true
			}
			return kind, left.Content(src), true
		}
	case "identifier", "alias":
		return kind, first.Content(src), true
	}
	if kind == parser.KindStruct {
		return kind, "__struct__", true
	}
	return "", "", false
}

func elixirImport(n *sitter.Node, src []byte) []parser.Import {
	target := n.ChildByFieldName("target")
	if target == nil {
		return nil
	}
	switch target.Content(src) {
	case "alias", "import", "use", "require":
	default:
		return nil
	}
	args := parser.ChildOfType(n, "arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	return []parser.Import{{Path: args.NamedChild(0).Content(src), Line: int(n.StartPoint().Row) + 1}}
}
