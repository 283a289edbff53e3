package query

import (
	"fmt"
	"strings"
)

// Markdown renders results the way the CLI, the tool server and the
// terminal UI show them.
func Markdown(raw string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %q\n", raw)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for %q (%d)\n\n", raw, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. `%s:%d`\n\n", i+1, r.Path, r.StartLine)
		fmt.Fprintf(&sb, "**Source:** %s", r.Source)
		if r.Symbol != "" {
			fmt.Fprintf(&sb, "  \n**Symbol:** %s", r.Symbol)
		}
		if r.Kind != "" {
			fmt.Fprintf(&sb, "  \n**Kind:** %s", r.Kind)
		}
		fmt.Fprintf(&sb, "  \n**Lines:** %d-%d", r.StartLine, r.EndLine)
		if r.Language != "" {
			fmt.Fprintf(&sb, "  \n**Language:** %s", r.Language)
		}
		sb.WriteString("\n\n")
		if r.Excerpt != "" {
			fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", r.Language, r.Excerpt)
		}
	}
	return sb.String()
}
