package parser

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	maxNameLen      = 128
	maxSignatureLen = 200
	maxExcerptLen   = 200
	// ctxCheckEvery is how many nodes are visited between deadline checks.
	ctxCheckEvery = 512
)

// Classifier decides whether a node defines a symbol and names it.
type Classifier func(n *sitter.Node, src []byte) (kind Kind, name string, ok bool)

// ImportFunc extracts imports from a node.
type ImportFunc func(n *sitter.Node, src []byte) []Import

// Grammar describes how to pull symbols, calls and imports out of one
// tree-sitter grammar. Node types are matched exactly.
type Grammar struct {
	Name     string
	Language *sitter.Language

	// Symbols maps definition node types to kinds.
	Symbols map[string]Kind
	// NameTypes are child node types tried, in order, when a definition
	// has neither a name nor a declarator field.
	NameTypes []string
	// Classify takes over naming and kind selection for its node types.
	Classify map[string]Classifier
	// Refine adjusts a kind using the enclosing symbol's kind, e.g. a
	// function nested in a class becomes a method.
	Refine func(n *sitter.Node, src []byte, kind, parent Kind) Kind

	// Calls maps call node types to the field holding the callee. An empty
	// field means the first named child.
	Calls map[string]string
	// Imports maps import node types to extractors.
	Imports map[string]ImportFunc
	// ImportCalls are callee names treated as imports (require, source).
	ImportCalls map[string]bool
}

type treeSitterAdapter struct {
	g Grammar
}

// NewTreeSitter returns an adapter for the grammar.
func NewTreeSitter(g Grammar) Adapter {
	return &treeSitterAdapter{g: g}
}

func (a *treeSitterAdapter) Language() string { return a.g.Name }

// Parse runs the grammar over src. The context deadline bounds both the
// tree-sitter parse and the extraction walk.
func (a *treeSitterAdapter) Parse(ctx context.Context, src []byte) (*Result, error) {
	if err := CheckContent(src); err != nil {
		return nil, err
	}

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(a.g.Language)

	tree, err := p.ParseCtx(ctx, nil, src)
	if ctx.Err() != nil {
		if tree != nil {
			tree.Close()
		}
		return nil, fmt.Errorf("%w: %s", ErrParseTimeout, a.g.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", a.g.Name, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree", a.g.Name)
	}
	defer tree.Close()

	w := &extractor{ctx: ctx, g: &a.g, src: src, lines: strings.Split(string(src), "\n")}
	w.res.Language = a.g.Name
	if err := w.walk(tree.RootNode(), -1); err != nil {
		return nil, err
	}
	w.res.Outline = BuildOutline(w.res.Symbols)
	return &w.res, nil
}

// Validate compiles a one-node query per table entry; entries naming a
// node type the grammar lacks fail to compile.
func (a *treeSitterAdapter) Validate() []string {
	types := make(map[string]bool)
	for t := range a.g.Symbols {
		types[t] = true
	}
	for t := range a.g.Classify {
		types[t] = true
	}
	for t := range a.g.Calls {
		types[t] = true
	}
	for t := range a.g.Imports {
		types[t] = true
	}
	var bad []string
	for t := range types {
		q, err := sitter.NewQuery([]byte("("+t+") @n"), a.g.Language)
		if err != nil {
			bad = append(bad, fmt.Sprintf("unknown node type %q", t))
			continue
		}
		q.Close()
	}
	sort.Strings(bad)
	return bad
}

type extractor struct {
	ctx     context.Context
	g       *Grammar
	src     []byte
	lines   []string
	res     Result
	visited int
}

func (w *extractor) walk(n *sitter.Node, parent int) error {
	w.visited++
	if w.visited%ctxCheckEvery == 0 && w.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrParseTimeout, w.g.Name)
	}

	typ := n.Type()
	current := parent
	if kind, name, ok := w.classify(n, typ, parent); ok {
		current = len(w.res.Symbols)
		w.res.Symbols = append(w.res.Symbols, Symbol{
			Name:      name,
			Kind:      kind,
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			StartCol:  int(n.StartPoint().Column),
			EndCol:    int(n.EndPoint().Column),
			Signature: signature(n.Content(w.src)),
			Parent:    parent,
		})
	} else if field, ok := w.g.Calls[typ]; ok {
		w.call(n, field, parent)
	}
	if fn, ok := w.g.Imports[typ]; ok {
		w.res.Imports = append(w.res.Imports, fn(n, w.src)...)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if err := w.walk(child, current); err != nil {
			return err
		}
	}
	return nil
}

func (w *extractor) classify(n *sitter.Node, typ string, parent int) (Kind, string, bool) {
	if c, ok := w.g.Classify[typ]; ok {
		kind, name, ok := c(n, w.src)
		if !ok || name == "" {
			return "", "", false
		}
		return kind, CleanName(name), true
	}

	kind, ok := w.g.Symbols[typ]
	if !ok {
		if !declarationShaped(typ) || n.ChildByFieldName("name") == nil {
			return "", "", false
		}
		kind = KindOther
	}
	name := NameOf(n, w.src, w.g.NameTypes)
	if name == "" {
		return "", "", false
	}
	if w.g.Refine != nil {
		var pk Kind
		if parent >= 0 {
			pk = w.res.Symbols[parent].Kind
		}
		kind = w.g.Refine(n, w.src, kind, pk)
	}
	return kind, name, true
}

func (w *extractor) call(n *sitter.Node, field string, caller int) {
	var target *sitter.Node
	if field == "" {
		if n.NamedChildCount() > 0 {
			target = n.NamedChild(0)
		}
	} else {
		target = n.ChildByFieldName(field)
	}
	if target == nil {
		return
	}
	callee := CalleeName(target.Type(), target.Content(w.src))
	if callee == "" {
		return
	}
	line := int(n.StartPoint().Row) + 1
	if w.g.ImportCalls[callee] {
		if path := FirstString(n, w.src); path != "" {
			w.res.Imports = append(w.res.Imports, Import{Path: path, Line: line})
		}
		return
	}
	w.res.Calls = append(w.res.Calls, Call{
		Caller:  caller,
		Callee:  callee,
		Line:    line,
		Excerpt: w.excerpt(line),
	})
}

func (w *extractor) excerpt(line int) string {
	if line < 1 || line > len(w.lines) {
		return ""
	}
	return truncate(strings.TrimSpace(w.lines[line-1]), maxExcerptLen)
}

// declarationShaped matches node types that conventionally introduce a named
// entity. Parameters and imports are excluded.
func declarationShaped(typ string) bool {
	if strings.Contains(typ, "parameter") || strings.Contains(typ, "argument") || strings.Contains(typ, "import") {
		return false
	}
	return strings.HasSuffix(typ, "_declaration") ||
		strings.HasSuffix(typ, "_definition") ||
		strings.HasSuffix(typ, "_item")
}

// NameOf finds a definition's name: the name field, then the declarator
// chain used by C-like grammars, then the first child of a listed type.
func NameOf(n *sitter.Node, src []byte, nameTypes []string) string {
	if c := n.ChildByFieldName("name"); c != nil {
		return CleanName(c.Content(src))
	}
	if d := n.ChildByFieldName("declarator"); d != nil {
		if d.NamedChildCount() == 0 {
			return CleanName(d.Content(src))
		}
		if name := NameOf(d, src, nameTypes); name != "" {
			return name
		}
	}
	if c := ChildOfType(n, nameTypes...); c != nil {
		return CleanName(c.Content(src))
	}
	return ""
}

// ChildOfType returns the first direct child whose type is one of types.
func ChildOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, t := range types {
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c != nil && c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// DescendantOfType returns the first node of one of types in a pre-order
// walk below n, or nil.
func DescendantOfType(n *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
		if d := DescendantOfType(c, types...); d != nil {
			return d
		}
	}
	return nil
}

// FirstString returns the unquoted content of the first string-like
// descendant of n.
func FirstString(n *sitter.Node, src []byte) string {
	var found string
	var visit func(*sitter.Node) bool
	visit = func(x *sitter.Node) bool {
		for i := 0; i < int(x.NamedChildCount()); i++ {
			c := x.NamedChild(i)
			if c == nil {
				continue
			}
			if strings.Contains(c.Type(), "string") {
				found = Unquote(c.Content(src))
				return true
			}
			if visit(c) {
				return true
			}
		}
		return false
	}
	visit(n)
	return found
}

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$!?]*`)

// CalleeName reduces a callee expression to the bare name being called:
// "pkg.Foo" -> "Foo", "obj->run" -> "run", "Vec::<T>::new" -> "new".
func CalleeName(nodeType, expr string) string {
	if strings.Contains(nodeType, "function") || strings.Contains(nodeType, "lambda") ||
		strings.Contains(nodeType, "closure") || strings.Contains(nodeType, "literal") {
		return ""
	}
	if i := strings.IndexAny(expr, "(\n"); i >= 0 {
		expr = expr[:i]
	}
	expr = stripGenerics(expr)
	m := identRe.FindAllString(expr, -1)
	if len(m) == 0 {
		return ""
	}
	return m[len(m)-1]
}

func stripGenerics(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<' || r == '[':
			depth++
		case (r == '>' || r == ']') && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastSegment returns the part of a qualified name after the final
// separator ("M.foo" -> "foo", "a::b" -> "b").
func LastSegment(name string) string {
	if i := strings.LastIndexAny(name, ".:#"); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

// CleanName trims a raw name to one line without quotes.
func CleanName(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = Unquote(strings.TrimSpace(s))
	return truncate(s, maxNameLen)
}

// Unquote strips one layer of matching quotes or angle brackets.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && last == first {
			return s[1 : len(s)-1]
		}
		if first == '<' && last == '>' {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func signature(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSpace(strings.TrimSuffix(content, "{"))
	return truncate(content, maxSignatureLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ImportText builds an ImportFunc that strips leading keywords and
// trailing punctuation from the node's first line.
func ImportText(keywords ...string) ImportFunc {
	return func(n *sitter.Node, src []byte) []Import {
		text := n.Content(src)
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		for changed := true; changed; {
			changed = false
			for _, kw := range keywords {
				if strings.HasPrefix(text, kw+" ") || strings.HasPrefix(text, kw+"\t") {
					text = strings.TrimSpace(text[len(kw):])
					changed = true
				}
			}
		}
		text = strings.TrimSpace(strings.TrimRight(text, ";{ "))
		text = Unquote(text)
		if text == "" {
			return nil
		}
		return []Import{{Path: text, Line: int(n.StartPoint().Row) + 1}}
	}
}

// ImportString builds an ImportFunc taking the first string literal below
// the node as the import path.
func ImportString() ImportFunc {
	return func(n *sitter.Node, src []byte) []Import {
		path := FirstString(n, src)
		if path == "" {
			return nil
		}
		return []Import{{Path: path, Line: int(n.StartPoint().Row) + 1}}
	}
}
