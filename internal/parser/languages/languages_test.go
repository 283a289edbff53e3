package languages

import (
	"context"
	"testing"
	"time"

	"codescope/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, a parser.Adapter, src string) *parser.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := a.Parse(ctx, []byte(src))
	require.NoError(t, err)
	return res
}

func symbolByName(res *parser.Result, name string) (parser.Symbol, bool) {
	for _, s := range res.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return parser.Symbol{}, false
}

func callees(res *parser.Result) map[string]string {
	out := make(map[string]string)
	for _, c := range res.Calls {
		caller := ""
		if c.Caller >= 0 {
			caller = res.Symbols[c.Caller].Name
		}
		out[c.Callee] = caller
	}
	return out
}

const goSource = `package demo

import (
	"fmt"
	str "strings"
)

type Server struct {
	Name string
}

const Version = "1"

func NewServer(name string) *Server {
	return &Server{Name: str.TrimSpace(name)}
}

func (s *Server) Run() error {
	fmt.Println(s.Name)
	return helper()
}

func helper() error { return nil }
`

func TestGoSymbolsCallsImports(t *testing.T) {
	res := parse(t, Go(), goSource)
	assert.Equal(t, "go", res.Language)

	want := map[string]parser.Kind{
		"Server":    parser.KindStruct,
		"Name":      parser.KindProperty,
		"Version":   parser.KindConstant,
		"NewServer": parser.KindFunction,
		"Run":       parser.KindMethod,
		"helper":    parser.KindFunction,
	}
	for name, kind := range want {
		s, ok := symbolByName(res, name)
		require.True(t, ok, name)
		assert.Equal(t, kind, s.Kind, name)
	}

	run, _ := symbolByName(res, "Run")
	assert.Equal(t, 18, run.StartLine)
	assert.Equal(t, 21, run.EndLine)
	assert.Equal(t, "func (s *Server) Run() error", run.Signature)

	field, _ := symbolByName(res, "Name")
	require.GreaterOrEqual(t, field.Parent, 0)
	assert.Equal(t, "Server", res.Symbols[field.Parent].Name)

	calls := callees(res)
	assert.Equal(t, "NewServer", calls["TrimSpace"])
	assert.Equal(t, "Run", calls["Println"])
	assert.Equal(t, "Run", calls["helper"])

	require.Len(t, res.Imports, 2)
	assert.Equal(t, "fmt", res.Imports[0].Path)
	assert.Equal(t, "strings", res.Imports[1].Path)
	assert.Equal(t, []string{"str"}, res.Imports[1].Names)

	var top []string
	for _, s := range res.Outline {
		top = append(top, s.Name)
	}
	assert.Equal(t, []string{"Server", "Version", "NewServer", "Run", "helper"}, top)
}

const pySource = `import os
from typing import List, Optional

class Greeter:
    def greet(self, name):
        return format_name(name)

def format_name(name):
    return name.strip()
`

func TestPythonMethodsAndImports(t *testing.T) {
	res := parse(t, Python(), pySource)

	cls, ok := symbolByName(res, "Greeter")
	require.True(t, ok)
	assert.Equal(t, parser.KindClass, cls.Kind)

	greet, ok := symbolByName(res, "greet")
	require.True(t, ok)
	assert.Equal(t, parser.KindMethod, greet.Kind)

	fn, ok := symbolByName(res, "format_name")
	require.True(t, ok)
	assert.Equal(t, parser.KindFunction, fn.Kind)
	assert.Equal(t, 8, fn.StartLine)

	calls := callees(res)
	assert.Equal(t, "greet", calls["format_name"])
	assert.Equal(t, "format_name", calls["strip"])

	require.Len(t, res.Imports, 2)
	assert.Equal(t, "os", res.Imports[0].Path)
	assert.Equal(t, "typing", res.Imports[1].Path)
	assert.Equal(t, []string{"List", "Optional"}, res.Imports[1].Names)
}

func TestJavaScriptRequireIsImport(t *testing.T) {
	src := `const fs = require("fs");

function load(path) {
  return fs.readFileSync(path);
}
`
	res := parse(t, JavaScript(), src)

	load, ok := symbolByName(res, "load")
	require.True(t, ok)
	assert.Equal(t, parser.KindFunction, load.Kind)

	require.Len(t, res.Imports, 1)
	assert.Equal(t, "fs", res.Imports[0].Path)

	calls := callees(res)
	assert.Equal(t, "load", calls["readFileSync"])
	_, isCall := calls["require"]
	assert.False(t, isCall)
}

func TestParseRejectsBinary(t *testing.T) {
	_, err := Go().Parse(context.Background(), []byte("package x\x00"))
	assert.ErrorIs(t, err, parser.ErrBinaryContent)
}

func TestParseHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Go().Parse(ctx, []byte(goSource))
	assert.ErrorIs(t, err, parser.ErrParseTimeout)
}

func TestRegistryCoversBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.GreaterOrEqual(t, len(r.Languages()), 30)

	a, lang := r.Lookup("service/Cargo.toml")
	require.NotNil(t, a)
	assert.Equal(t, "cargo.toml", lang)

	a, lang = r.Lookup("config.toml")
	require.NotNil(t, a)
	assert.Equal(t, "toml", lang)

	a, lang = r.Lookup("build/Dockerfile.ci")
	require.NotNil(t, a)
	assert.Equal(t, "dockerfile", lang)

	a, lang = r.Lookup("data.json")
	assert.Nil(t, a)
	assert.Equal(t, "json", lang)
}

func TestPackageJSON(t *testing.T) {
	src := `{
  "name": "web",
  "version": "1.2.0",
  "scripts": {
    "build": "vite build"
  },
  "dependencies": {
    "react": "^18.2.0"
  },
  "devDependencies": {
    "vite": "^5.0.0"
  }
}
`
	res := parse(t, PackageJSON(), src)

	mod, ok := symbolByName(res, "web")
	require.True(t, ok)
	assert.Equal(t, parser.KindModule, mod.Kind)

	build, ok := symbolByName(res, "build")
	require.True(t, ok)
	assert.Equal(t, parser.KindFunction, build.Kind)
	assert.Equal(t, "vite build", build.Signature)

	react, ok := symbolByName(res, "react")
	require.True(t, ok)
	assert.Equal(t, parser.KindDependency, react.Kind)
	assert.Equal(t, "^18.2.0", react.Metadata["version"])
	assert.Equal(t, 8, react.StartLine)

	vite, ok := symbolByName(res, "vite")
	require.True(t, ok)
	assert.Equal(t, "dev", vite.Metadata["scope"])

	assert.Len(t, res.Imports, 2)
}

func TestGoMod(t *testing.T) {
	src := `module example.com/app

go 1.22

require github.com/google/uuid v1.6.0

require (
	github.com/spf13/cobra v1.10.2
	golang.org/x/sys v0.30.0 // indirect
)
`
	res := parse(t, GoMod(), src)

	mod, ok := symbolByName(res, "example.com/app")
	require.True(t, ok)
	assert.Equal(t, parser.KindModule, mod.Kind)

	uuid, ok := symbolByName(res, "github.com/google/uuid")
	require.True(t, ok)
	assert.Equal(t, "v1.6.0", uuid.Metadata["version"])
	assert.Equal(t, 5, uuid.StartLine)

	sys, ok := symbolByName(res, "golang.org/x/sys")
	require.True(t, ok)
	assert.Equal(t, "indirect", sys.Metadata["scope"])
	assert.Equal(t, 9, sys.StartLine)

	assert.Len(t, res.Imports, 3)
}

func TestRequirements(t *testing.T) {
	src := "# deps\nrequests>=2.31\nuvicorn[standard]==0.30.0 ; python_version > '3.8'\n-r dev.txt\nflask\n"
	res := parse(t, Requirements(), src)

	require.Len(t, res.Symbols, 3)
	assert.Equal(t, "requests", res.Symbols[0].Name)
	assert.Equal(t, ">=2.31", res.Symbols[0].Metadata["version"])
	assert.Equal(t, "uvicorn", res.Symbols[1].Name)
	assert.Equal(t, "==0.30.0", res.Symbols[1].Metadata["version"])
	assert.Equal(t, "flask", res.Symbols[2].Name)
	assert.Equal(t, 5, res.Symbols[2].StartLine)
}

func TestCargoToml(t *testing.T) {
	src := `[package]
name = "engine"
version = "0.1.0"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
anyhow = "1"

[dev-dependencies]
tempfile = "3"
`
	res := parse(t, CargoToml(), src)

	pkg, ok := symbolByName(res, "engine")
	require.True(t, ok)
	assert.Equal(t, parser.KindModule, pkg.Kind)

	serde, ok := symbolByName(res, "serde")
	require.True(t, ok)
	assert.Equal(t, "1.0", serde.Metadata["version"])
	assert.Equal(t, 6, serde.StartLine)

	tmp, ok := symbolByName(res, "tempfile")
	require.True(t, ok)
	assert.Equal(t, "dev", tmp.Metadata["scope"])
}

func TestPyProject(t *testing.T) {
	src := `[project]
name = "svc"
version = "0.2.0"
dependencies = ["httpx>=0.27", "pydantic"]

[project.optional-dependencies]
test = ["pytest"]
`
	res := parse(t, PyProject(), src)

	_, ok := symbolByName(res, "svc")
	assert.True(t, ok)

	httpx, ok := symbolByName(res, "httpx")
	require.True(t, ok)
	assert.Equal(t, ">=0.27", httpx.Metadata["version"])

	pytest, ok := symbolByName(res, "pytest")
	require.True(t, ok)
	assert.Equal(t, "test", pytest.Metadata["scope"])
}

func TestCompose(t *testing.T) {
	src := `services:
  api:
    image: ghcr.io/acme/api:1.4
    ports:
      - "8080:8080"
  db:
    image: postgres:16
`
	res := parse(t, Compose(), src)

	api, ok := symbolByName(res, "api")
	require.True(t, ok)
	assert.Equal(t, parser.KindSection, api.Kind)
	assert.Equal(t, 2, api.StartLine)
	assert.Equal(t, 5, api.EndLine)
	assert.Equal(t, "ghcr.io/acme/api:1.4", api.Metadata["image"])

	require.Len(t, res.Imports, 2)
	assert.Equal(t, "postgres:16", res.Imports[1].Path)
}

func TestManifestSyntaxError(t *testing.T) {
	_, err := PackageJSON().Parse(context.Background(), []byte(`{"name": `))
	assert.Error(t, err)
}
