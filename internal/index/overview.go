package index

import (
	"context"
	"fmt"
	"strings"

	"codescope/internal/store"
)

// Overview summarizes the index: what languages it holds, which definitions
// the rest of the code leans on, and which files were indexed as text only.
type Overview struct {
	Root      string                `json:"root"`
	Files     int64                 `json:"files"`
	Symbols   int64                 `json:"symbols"`
	Calls     int64                 `json:"calls"`
	Languages []store.LanguageCount `json:"languages"`
	Hotspots  []store.Hotspot       `json:"hotspots"`
	Degraded  []store.FileRecord    `json:"degraded"`
}

// Overview builds a project overview listing at most limit hotspots.
func (e *Engine) Overview(ctx context.Context, limit int) (Overview, error) {
	ov := Overview{Root: e.root}

	c, err := e.store.Counts(ctx)
	if err != nil {
		return ov, err
	}
	ov.Files, ov.Symbols, ov.Calls = c.Files, c.Symbols, c.Calls

	if ov.Languages, err = e.store.Languages(ctx); err != nil {
		return ov, err
	}
	if ov.Hotspots, err = e.store.Hotspots(ctx, limit); err != nil {
		return ov, err
	}
	if c.Degraded > 0 {
		files, err := e.store.ListFiles(ctx, "")
		if err != nil {
			return ov, err
		}
		for _, f := range files {
			if f.Degraded {
				ov.Degraded = append(ov.Degraded, f)
			}
		}
	}
	return ov, nil
}

// Markdown renders the overview for the terminal and the tool server.
func (o Overview) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Project overview\n\n`%s`: %d files, %d symbols, %d calls\n\n", o.Root, o.Files, o.Symbols, o.Calls)

	if o.Files == 0 {
		sb.WriteString("Nothing indexed yet. Run `codescope index` first.\n")
		return sb.String()
	}

	sb.WriteString("## Languages\n\n| Language | Files | Symbols |\n|---|---:|---:|\n")
	for _, l := range o.Languages {
		name := l.Language
		if name == "" {
			name = "text"
		}
		fmt.Fprintf(&sb, "| %s | %d | %d |\n", name, l.Files, l.Symbols)
	}

	if len(o.Hotspots) > 0 {
		sb.WriteString("\n## Most called\n\n")
		for i, h := range o.Hotspots {
			fmt.Fprintf(&sb, "%d. `%s` (%s) at `%s:%d`, %d call sites\n", i+1, h.Name, h.Kind, h.Path, h.Line, h.Callers)
		}
	}

	if len(o.Degraded) > 0 {
		sb.WriteString("\n## Indexed as text only\n\n")
		for _, f := range o.Degraded {
			fmt.Fprintf(&sb, "- `%s`: %s\n", f.Path, f.ParseError)
		}
	}
	return sb.String()
}
