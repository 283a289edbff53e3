package languages

import (
	"strings"

	"codescope/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/html"
	tsmarkdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
	"github.com/smacker/go-tree-sitter/svelte"
)

func Markdown() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "markdown",
		Language: tsmarkdown.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"atx_heading":    markdownHeading,
			"setext_heading": markdownHeading,
		},
	})
}

func markdownHeading(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	text := n.Content(src)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(strings.TrimLeft(text, "#"))
	text = strings.TrimSpace(strings.TrimRight(text, "#"))
	return parser.KindSection, text, text != ""
}

func CSS() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "css",
		Language: css.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"rule_set":            cssRule,
			"keyframes_statement": cssKeyframes,
			"media_statement":     cssMedia,
		},
		Imports: map[string]parser.ImportFunc{
			"import_statement": parser.ImportText("@import", "url("),
		},
	})
}

func cssRule(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	sel := parser.ChildOfType(n, "selectors")
	if sel == nil {
		return "", "", false
	}
	return parser.KindSection, strings.Join(strings.Fields(sel.Content(src)), " "), true
}

func cssKeyframes(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	name := parser.ChildOfType(n, "keyframes_name")
	if name == nil {
		return "", "", false
	}
	return parser.KindOther, name.Content(src), true
}

func cssMedia(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	text := n.Content(src)
	if i := strings.IndexByte(text, '{'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	return parser.KindSection, text, text != ""
}

func HTML() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "html",
		Language: html.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"element": htmlElement,
		},
		Imports: map[string]parser.ImportFunc{
			"script_element": htmlSource("script", "src"),
			"element":        htmlSource("link", "href"),
		},
	})
}

func Svelte() parser.Adapter {
	return parser.NewTreeSitter(parser.Grammar{
		Name:     "svelte",
		Language: svelte.GetLanguage(),
		Classify: map[string]parser.Classifier{
			"element":        htmlElement,
			"script_element": svelteBlock("script"),
			"style_element":  svelteBlock("style"),
		},
	})
}

// htmlAttr returns the value of the named attribute on a start tag.
func htmlAttr(tag *sitter.Node, src []byte, name string) string {
	for i := 0; i < int(tag.NamedChildCount()); i++ {
		a := tag.NamedChild(i)
		if a.Type() != "attribute" {
			continue
		}
		an := parser.ChildOfType(a, "attribute_name")
		if an == nil || an.Content(src) != name {
			continue
		}
		if v := parser.ChildOfType(a, "quoted_attribute_value", "attribute_value"); v != nil {
			return parser.Unquote(v.Content(src))
		}
	}
	return ""
}

// htmlElement records elements carrying an id as #id sections.
func htmlElement(n *sitter.Node, src []byte) (parser.Kind, string, bool) {
	tag := parser.ChildOfType(n, "start_tag", "self_closing_tag")
	if tag == nil {
		return "", "", false
	}
	id := htmlAttr(tag, src, "id")
	if id == "" {
		return "", "", false
	}
	return parser.KindSection, "#" + id, true
}

// htmlSource extracts the attr of <tagName> elements as an import.
func htmlSource(tagName, attr string) parser.ImportFunc {
	return func(n *sitter.Node, src []byte) []parser.Import {
		tag := parser.ChildOfType(n, "start_tag", "self_closing_tag")
		if tag == nil {
			return nil
		}
		if tn := parser.ChildOfType(tag, "tag_name"); tn == nil || !strings.EqualFold(tn.Content(src), tagName) {
			return nil
		}
		v := htmlAttr(tag, src, attr)
		if v == "" || strings.HasPrefix(v, "#") {
			return nil
		}
		return []parser.Import{{Path: v, Line: int(n.StartPoint().Row) + 1}}
	}
}

func svelteBlock(name string) parser.Classifier {
	return func(*sitter.Node, []byte) (parser.Kind, string, bool) {
		return parser.KindSection, name, true
	}
}
