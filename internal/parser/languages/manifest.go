package languages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"codescope/internal/parser"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// manifest adapters turn dependency manifests into dependency symbols
// (one per declared package, version in Metadata) plus imports.
type manifest struct {
	name  string
	parse func(src []byte, lines []string) (*parser.Result, error)
}

func (m *manifest) Language() string { return m.name }

func (m *manifest) Parse(ctx context.Context, src []byte) (*parser.Result, error) {
	if err := parser.CheckContent(src); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", parser.ErrParseTimeout, m.name)
	}
	res, err := m.parse(src, strings.Split(string(src), "\n"))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.name, err)
	}
	res.Language = m.name
	res.Outline = parser.BuildOutline(res.Symbols)
	return res, nil
}

// lineOf returns the 1-based line of the first line containing needle, or 1.
func lineOf(lines []string, needle string) int {
	for i, l := range lines {
		if strings.Contains(l, needle) {
			return i + 1
		}
	}
	return 1
}

// addDep appends a dependency symbol and the matching import.
func addDep(res *parser.Result, name, version, scope string, line int) {
	meta := map[string]string{}
	if version != "" {
		meta["version"] = version
	}
	if scope != "" {
		meta["scope"] = scope
	}
	sig := name
	if version != "" {
		sig += " " + version
	}
	res.Symbols = append(res.Symbols, parser.Symbol{
		Name:      name,
		Kind:      parser.KindDependency,
		StartLine: line,
		EndLine:   line,
		Signature: sig,
		Parent:    -1,
		Metadata:  meta,
	})
	res.Imports = append(res.Imports, parser.Import{Path: name, Line: line})
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func PackageJSON() parser.Adapter { return &manifest{name: "package.json", parse: parsePackageJSON} }

func parsePackageJSON(src []byte, lines []string) (*parser.Result, error) {
	var pkg struct {
		Name                 string            `json:"name"`
		Version              string            `json:"version"`
		Scripts              map[string]string `json:"scripts"`
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
	}
	if err := json.Unmarshal(src, &pkg); err != nil {
		return nil, err
	}
	res := &parser.Result{}
	if pkg.Name != "" {
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      pkg.Name,
			Kind:      parser.KindModule,
			StartLine: lineOf(lines, `"name"`),
			EndLine:   lineOf(lines, `"name"`),
			Signature: strings.TrimSpace(pkg.Name + " " + pkg.Version),
			Parent:    -1,
		})
	}
	for _, name := range sortedNames(pkg.Scripts) {
		line := lineOf(lines, `"`+name+`"`)
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      name,
			Kind:      parser.KindFunction,
			StartLine: line,
			EndLine:   line,
			Signature: pkg.Scripts[name],
			Parent:    -1,
			Metadata:  map[string]string{"scope": "script"},
		})
	}
	groups := []struct {
		deps  map[string]string
		scope string
	}{
		{pkg.Dependencies, ""},
		{pkg.DevDependencies, "dev"},
		{pkg.PeerDependencies, "peer"},
		{pkg.OptionalDependencies, "optional"},
	}
	for _, g := range groups {
		for _, name := range sortedNames(g.deps) {
			addDep(res, name, g.deps[name], g.scope, lineOf(lines, `"`+name+`"`))
		}
	}
	return res, nil
}

func GoMod() parser.Adapter { return &manifest{name: "go.mod", parse: parseGoMod} }

// parseGoMod reads module, require and replace directives, in both single
// line and block form.
func parseGoMod(_ []byte, lines []string) (*parser.Result, error) {
	res := &parser.Result{}
	block := ""
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if j := strings.Index(line, "//"); j >= 0 {
			line = strings.TrimSpace(line[:j])
		}
		if line == "" {
			continue
		}
		if block != "" {
			if line == ")" {
				block = ""
				continue
			}
			goModDirective(res, block, strings.Fields(line), i+1, raw)
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "(" {
			block = fields[0]
			continue
		}
		goModDirective(res, fields[0], fields[1:], i+1, raw)
	}
	return res, nil
}

func goModDirective(res *parser.Result, verb string, args []string, line int, raw string) {
	if len(args) == 0 {
		return
	}
	switch verb {
	case "module":
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      parser.Unquote(args[0]),
			Kind:      parser.KindModule,
			StartLine: line,
			EndLine:   line,
			Signature: strings.TrimSpace(raw),
			Parent:    -1,
		})
	case "require":
		version := ""
		if len(args) > 1 {
			version = args[1]
		}
		scope := ""
		if strings.Contains(raw, "// indirect") {
			scope = "indirect"
		}
		addDep(res, args[0], version, scope, line)
	case "replace":
		if i := indexOf(args, "=>"); i > 0 && i+1 < len(args) {
			res.Imports = append(res.Imports, parser.Import{Path: args[i+1], Names: []string{args[0]}, Line: line})
		}
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func Requirements() parser.Adapter {
	return &manifest{name: "requirements.txt", parse: parseRequirements}
}

// requirementOps are the PEP 440 comparison operators, longest first.
var requirementOps = []string{"===", "~=", "==", "!=", ">=", "<=", ">", "<"}

func parseRequirements(_ []byte, lines []string) (*parser.Result, error) {
	res := &parser.Result{}
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if j := strings.Index(line, "#"); j >= 0 {
			line = strings.TrimSpace(line[:j])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if j := strings.Index(line, ";"); j >= 0 {
			line = strings.TrimSpace(line[:j])
		}
		name, version := line, ""
		for _, op := range requirementOps {
			if j := strings.Index(line, op); j > 0 {
				name, version = strings.TrimSpace(line[:j]), strings.TrimSpace(line[j:])
				break
			}
		}
		if j := strings.Index(name, "["); j > 0 {
			name = name[:j]
		}
		addDep(res, name, version, "", i+1)
	}
	return res, nil
}

func CargoToml() parser.Adapter { return &manifest{name: "cargo.toml", parse: parseCargo} }

func parseCargo(src []byte, lines []string) (*parser.Result, error) {
	var doc struct {
		Package struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"package"`
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	}
	if _, err := toml.Decode(string(src), &doc); err != nil {
		return nil, err
	}
	res := &parser.Result{}
	if doc.Package.Name != "" {
		line := lineOf(lines, "[package]")
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      doc.Package.Name,
			Kind:      parser.KindModule,
			StartLine: line,
			EndLine:   line,
			Signature: strings.TrimSpace(doc.Package.Name + " " + doc.Package.Version),
			Parent:    -1,
		})
	}
	groups := []struct {
		deps  map[string]any
		scope string
	}{
		{doc.Dependencies, ""},
		{doc.DevDependencies, "dev"},
		{doc.BuildDependencies, "build"},
	}
	for _, g := range groups {
		for _, name := range sortedNames(g.deps) {
			addDep(res, name, cargoVersion(g.deps[name]), g.scope, lineOf(lines, name))
		}
	}
	return res, nil
}

// cargoVersion handles both `dep = "1.0"` and `dep = { version = "1.0" }`.
func cargoVersion(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["version"].(string); ok {
			return s
		}
		if s, ok := t["git"].(string); ok {
			return s
		}
		if s, ok := t["path"].(string); ok {
			return s
		}
	}
	return ""
}

func PyProject() parser.Adapter { return &manifest{name: "pyproject.toml", parse: parsePyProject} }

func parsePyProject(src []byte, lines []string) (*parser.Result, error) {
	var doc struct {
		Project struct {
			Name                 string              `toml:"name"`
			Version              string              `toml:"version"`
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(src), &doc); err != nil {
		return nil, err
	}
	res := &parser.Result{}
	if doc.Project.Name != "" {
		line := lineOf(lines, "[project]")
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      doc.Project.Name,
			Kind:      parser.KindModule,
			StartLine: line,
			EndLine:   line,
			Signature: strings.TrimSpace(doc.Project.Name + " " + doc.Project.Version),
			Parent:    -1,
		})
	}
	reqs, err := parseRequirements(nil, doc.Project.Dependencies)
	if err != nil {
		return nil, err
	}
	for _, s := range reqs.Symbols {
		addDep(res, s.Name, s.Metadata["version"], "", lineOf(lines, s.Name))
	}
	for _, group := range sortedNames(doc.Project.OptionalDependencies) {
		opt, err := parseRequirements(nil, doc.Project.OptionalDependencies[group])
		if err != nil {
			return nil, err
		}
		for _, s := range opt.Symbols {
			addDep(res, s.Name, s.Metadata["version"], group, lineOf(lines, s.Name))
		}
	}
	for _, name := range sortedNames(doc.Tool.Poetry.Dependencies) {
		if name == "python" {
			continue
		}
		addDep(res, name, cargoVersion(doc.Tool.Poetry.Dependencies[name]), "", lineOf(lines, name))
	}
	return res, nil
}

func Compose() parser.Adapter { return &manifest{name: "docker-compose", parse: parseCompose} }

func parseCompose(src []byte, lines []string) (*parser.Result, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, err
	}
	res := &parser.Result{}
	if len(doc.Content) == 0 {
		return res, nil
	}
	services := mappingValue(doc.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return res, nil
	}
	for i := 0; i+1 < len(services.Content); i += 2 {
		key, body := services.Content[i], services.Content[i+1]
		idx := len(res.Symbols)
		res.Symbols = append(res.Symbols, parser.Symbol{
			Name:      key.Value,
			Kind:      parser.KindSection,
			StartLine: key.Line,
			EndLine:   lastLine(body),
			Signature: key.Value + ":",
			Parent:    -1,
		})
		if img := mappingValue(body, "image"); img != nil && img.Value != "" {
			res.Symbols[idx].Metadata = map[string]string{"image": img.Value}
			res.Imports = append(res.Imports, parser.Import{Path: img.Value, Names: []string{key.Value}, Line: img.Line})
		}
	}
	return res, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func lastLine(n *yaml.Node) int {
	last := n.Line
	for _, c := range n.Content {
		if l := lastLine(c); l > last {
			last = l
		}
	}
	return last
}
