package parser

import (
	"path/filepath"
	"strings"
)

// extLanguages maps lower-case extensions (without dot) to language names.
// Languages listed here without a registered adapter are indexed as text.
var extLanguages = map[string]string{
	"go":     "go",
	"py":     "python",
	"pyi":    "python",
	"js":     "javascript",
	"jsx":    "javascript",
	"mjs":    "javascript",
	"cjs":    "javascript",
	"ts":     "typescript",
	"mts":    "typescript",
	"cts":    "typescript",
	"tsx":    "tsx",
	"java":   "java",
	"kt":     "kotlin",
	"kts":    "kotlin",
	"scala":  "scala",
	"sc":     "scala",
	"groovy": "groovy",
	"gradle": "groovy",
	"c":      "c",
	"h":      "c",
	"cc":     "cpp",
	"cpp":    "cpp",
	"cxx":    "cpp",
	"hpp":    "cpp",
	"hh":     "cpp",
	"hxx":    "cpp",
	"cs":     "csharp",
	"rs":     "rust",
	"swift":  "swift",
	"rb":     "ruby",
	"rake":   "ruby",
	"php":    "php",
	"lua":    "lua",
	"sh":     "bash",
	"bash":   "bash",
	"zsh":    "bash",
	"ex":     "elixir",
	"exs":    "elixir",
	"ml":     "ocaml",
	"mli":    "ocaml",
	"elm":    "elm",
	"proto":  "protobuf",
	"tf":     "hcl",
	"tfvars": "hcl",
	"hcl":    "hcl",
	"toml":   "toml",
	"yaml":   "yaml",
	"yml":    "yaml",
	"css":    "css",
	"html":   "html",
	"htm":    "html",
	"svelte": "svelte",
	"md":     "markdown",
	"mdx":    "markdown",
	"sql":    "sql",
	"cue":    "cue",

	// text only
	"json":  "json",
	"jsonc": "json",
	"xml":   "xml",
	"vue":   "vue",
	"dart":  "dart",
	"r":     "r",
	"pl":    "perl",
	"pm":    "perl",
	"hs":    "haskell",
	"erl":   "erlang",
	"clj":   "clojure",
	"zig":   "zig",
	"nim":   "nim",
	"jl":    "julia",
	"fs":    "fsharp",
	"m":     "objc",
	"mm":    "objc",
	"ps1":   "powershell",
	"fish":  "fish",
	"scss":  "scss",
	"less":  "less",
	"ini":   "ini",
	"cfg":   "ini",
	"txt":   "text",
	"rst":   "rst",
	"mk":    "make",
	"cmake": "cmake",
	"bzl":   "starlark",
	"gql":   "graphql",

	"graphql": "graphql",
}

// fileLanguages maps exact base names to language names. Manifest files are
// matched here before the extension table.
var fileLanguages = map[string]string{
	"Dockerfile":          "dockerfile",
	"Containerfile":       "dockerfile",
	"Makefile":            "make",
	"GNUmakefile":         "make",
	"CMakeLists.txt":      "cmake",
	"Gemfile":             "ruby",
	"Rakefile":            "ruby",
	"BUILD":               "starlark",
	"BUILD.bazel":         "starlark",
	"WORKSPACE":           "starlark",
	"Jenkinsfile":         "groovy",
	"package.json":        "package.json",
	"go.mod":              "go.mod",
	"requirements.txt":    "requirements.txt",
	"Cargo.toml":          "cargo.toml",
	"pyproject.toml":      "pyproject.toml",
	"docker-compose.yml":  "docker-compose",
	"docker-compose.yaml": "docker-compose",
	"compose.yml":         "docker-compose",
	"compose.yaml":        "docker-compose",
}

// languageAliases normalizes user-facing names used in query filters.
var languageAliases = map[string]string{
	"golang":    "go",
	"py":        "python",
	"python3":   "python",
	"js":        "javascript",
	"node":      "javascript",
	"ts":        "typescript",
	"c++":       "cpp",
	"cxx":       "cpp",
	"c#":        "csharp",
	"cs":        "csharp",
	"rs":        "rust",
	"rb":        "ruby",
	"sh":        "bash",
	"shell":     "bash",
	"kt":        "kotlin",
	"terraform": "hcl",
	"tf":        "hcl",
	"yml":       "yaml",
	"md":        "markdown",
	"proto":     "protobuf",
	"ex":        "elixir",
	"ml":        "ocaml",
	"docker":    "dockerfile",
	"compose":   "docker-compose",
	"cargo":     "cargo.toml",
	"npm":       "package.json",
	"gomod":     "go.mod",
	"pip":       "requirements.txt",
	"pyproject": "pyproject.toml",
}

// DetectLanguage returns the language for a path, or "" when unknown.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	if lang, ok := fileLanguages[base]; ok {
		return lang
	}
	if strings.HasPrefix(base, "Dockerfile.") {
		return "dockerfile"
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	return extLanguages[ext]
}

// NormalizeLanguage maps a user-supplied language name to its canonical
// form. ok is false when the name is not a known language.
func NormalizeLanguage(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[n]; ok {
		return alias, true
	}
	for _, lang := range extLanguages {
		if lang == n {
			return n, true
		}
	}
	for _, lang := range fileLanguages {
		if lang == n {
			return n, true
		}
	}
	return "", false
}

// KnownLanguages returns the number of distinct detectable languages.
func KnownLanguages() int {
	seen := make(map[string]bool)
	for _, l := range extLanguages {
		seen[l] = true
	}
	for _, l := range fileLanguages {
		seen[l] = true
	}
	return len(seen)
}
