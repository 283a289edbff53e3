package languages

import (
	"strings"

	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cue"
	"github.com/smacker/go-tree-sitter/dockerfile"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/protobuf"
	"github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/toml"
	"github.com/smacker/go-tree-sitter/yaml"
)

func TOML() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "toml",
		Language: toml.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"table":               tomlTable,
			"table_array_element": tomlTable,
			"pair":                tomlPair,
		},
	})
}

func tomlKey(n *sitter.Node, src []byte) string {
	k := parser.ChildOfType(n, "bare_key", "dotted_key", "quoted_key")
	if k == nil {
		return ""
	}
	return k.Content(src)
}

func tomlTable(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	key := tomlKey(n, src)
	return parser.KindSection, key, key != ""
}

func tomlPair(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	key := tomlKey(n, src)
	return parser.KindProperty, key, key != ""
}

func YAML() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "yaml",
		Language: yaml.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"block_mapping_pair": yamlPair,
		},
	})
}

// yamlMaxDepth bounds how deeply nested keys are recorded as symbols.
const yamlMaxDepth = 2

func yamlPair(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "block_mapping_pair" {
			depth++
		}
	}
	if depth >= yamlMaxDepth {
		return "", "", false
	}
	key := n.ChildByFieldName("key")
	if key == nil {
		return "", "", false
	}
	kind := parser.KindProperty
	if depth == 0 {
		kind = parser.KindSection
	}
	return kind, key.Content(src), true
}

func HCL() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "hcl",
		Language: hcl.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"block":     hclBlock,
			"attribute": hclAttribute,
		},
		Calls: map[string]string{
			"function_call": "",
		},
	})
}

// hclBlock names a block by its type and labels:
// resource "aws_s3_bucket" "logs" -> resource.aws_s3_bucket.logs.
func hclBlock(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	var parts []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "identifier" && c.Type() != "string_lit" {
			break
		}
		parts = append(parts, parser.Unquote(c.Content(src)))
	}
	if len(parts) == 0 {
		return "", "", false
	}
	return parser.KindSection, strings.Join(parts, "."), true
}

func hclAttribute(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	id := parser.ChildOfType(n, "identifier")
	if id == nil {
		return "", "", false
	}
	// only top-level attributes and direct block attributes
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "block" {
			depth++
		}
	}
	if depth > 1 {
		return "", "", false
	}
	return parser.KindProperty, id.Content(src), true
}

func Protobuf() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "protobuf",
		Language: protobuf.GetLanguage(),
		Symbols: map[string]parser.Kind{
			"message": parser.KindStruct,
			"enum":    parser.KindEnum,
			"service": parser.KindInterface,
			"rpc":     parser.KindMethod,
			"field":   parser.KindProperty,
		},
		NameTypes: []string{"message_name", "enum_name", "service_name", "rpc_name", "identifier"},
		Imports: map[string]parser.ImportFunc{
			"import": parser.ImportString(),
		},
	})
}

func CUE() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "cue",
		Language: cue.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"field": cueField,
		},
		Imports: map[string]parser.ImportFunc{
			"import_spec": parser.ImportString(),
		},
	})
}

func cueField(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	label := parser.ChildOfType(n, "label")
	if label == nil {
		return "", "", false
	}
	name := strings.TrimRight(label.Content(src), "?!")
	if strings.HasPrefix(name, "#") {
		return parser.KindType, name, true
	}
	return parser.KindProperty, name, true
}

func SQL() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "sql",
		Language: sql.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"create_table":    sqlObject(parser.KindStruct),
			"create_view":     sqlObject(parser.KindType),
			"create_function": sqlObject(parser.KindFunction),
			"create_index":    sqlObject(parser.KindOther),
		},
		Calls: map[string]string{
			"invocation": "",
		},
	})
}

// sqlObject names a CREATE statement after the last segment of its
// object reference (schema.table -> table).
func sqlObject(kind parser.Kind) parser.Classifier {
	return func(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
		ref := parser.ChildOfType(n, "object_reference")
		if ref == nil {
			if kind != parser.KindOther {
				return "", "", false
			}
			// CREATE INDEX name ON ...
			ref = parser.ChildOfType(n, "identifier")
			if ref == nil {
				return "", "", false
			}
		}
		if name := ref.ChildByFieldName("name"); name != nil {
			return kind, name.Content(src), true
		}
		return kind, parser.LastSegment(ref.Content(src)), true
	}
}

func Dockerfile() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "dockerfile",
		Language: dockerfile.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"from_instruction": dockerStage,
			"env_pair":         dockerEnv,
			"arg_instruction":  dockerArg,
		},
		Imports: map[string]parser.ImportFunc{
			"from_instruction": dockerImage,
		},
	})
}

// dockerStage records `FROM image AS name` build stages.
func dockerStage(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	alias := n.ChildByFieldName("as")
	if alias == nil {
		alias = parser.ChildOfType(n, "image_alias")
	}
	if alias == nil {
		return "", "", false
	}
	return parser.KindSection, alias.Content(src), true
}

func dockerEnv(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return "", "", false
	}
	return parser.KindVariable, name.Content(src), true
}

func dockerArg(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return "", "", false
	}
	return parser.KindVariable, name.Content(src), true
}

func dockerImage(n *sitter.Node, src []byte) []parser.Import {
	spec := parser.ChildOfType(n, "image_spec")
	if spec == nil {
		return nil
	}
	return []parser.Import{{Path: spec.Content(src), Line: int(n.StartPoint().Row) + 1}}
}
