// Package languages holds the per-language adapters and wires them into a
// parser.Registry.
package languages

import "codescope/internal/parser"

// RegisterAll adds every built-in adapter to r.
func RegisterAll(r *parser.Registry) {
	r.Register(Go(), "go")
	r.Register(Python(), "py", "pyi")
	r.Register(JavaScript(), "js", "jsx", "mjs", "cjs")
	r.Register(TypeScript(), "ts", "mts", "cts")
	r.Register(TSX(), "tsx")
	r.Register(Java(), "java")
	r.Register(Kotlin(), "kt", "kts")
	r.Register(Scala(), "scala", "sc")
	r.Register(Groovy(), "groovy", "gradle")
	r.Register(C(), "c", "h")
	r.Register(Cpp(), "cc", "cpp", "cxx", "hpp", "hh", "hxx")
	r.Register(CSharp(), "cs")
	r.Register(Rust(), "rs")
	r.Register(Swift(), "swift")
	r.Register(Ruby(), "rb", "rake")
	r.Register(PHP(), "php")
	r.Register(Lua(), "lua")
	r.Register(Bash(), "sh", "bash", "zsh")
	r.Register(Elixir(), "ex", "exs")
	r.Register(OCaml(), "ml", "mli")
	r.Register(Elm(), "elm")
	r.Register(Protobuf(), "proto")
	r.Register(HCL(), "tf", "tfvars", "hcl")
	r.Register(TOML(), "toml")
	r.Register(YAML(), "yaml", "yml")
	r.Register(CSS(), "css")
	r.Register(HTML(), "html", "htm")
	r.Register(Svelte(), "svelte")
	r.Register(Markdown(), "md", "mdx")
	r.Register(SQL(), "sql")
	r.Register(CUE(), "cue")
	r.RegisterFile(Dockerfile(), "Dockerfile", "Containerfile")

	r.RegisterFile(PackageJSON(), "package.json")
	r.RegisterFile(GoMod(), "go.mod")
	r.RegisterFile(Requirements(), "requirements.txt")
	r.RegisterFile(CargoToml(), "Cargo.toml")
	r.RegisterFile(PyProject(), "pyproject.toml")
	r.RegisterFile(Compose(), "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml")
}

// NewRegistry returns a registry with every built-in adapter registered.
func NewRegistry() *parser.Registry {
	r := parser.NewRegistry()
	RegisterAll(r)
	return r
}
