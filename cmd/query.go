package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"codescope/internal/query"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	flagLimit    int
	flagMode     string
	flagJSON     bool
	flagMarkdown bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Search symbols and code",
	Long: `Search the index. A single identifier is looked up as a symbol first
(definitions, then call sites) and falls back to full text; anything else is a
full-text search. Quoted spans are phrases.

Filters: lang:go,python  kind:function  path:internal/**  ext:ts`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := query.ParseMode(flagMode)
		if err != nil {
			return err
		}
		raw := strings.Join(args, " ")

		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		results, err := eng.Query(cmd.Context(), raw, query.Options{Limit: flagLimit, Mode: mode})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case flagJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if results == nil {
				results = []query.Result{}
			}
			return enc.Encode(results)
		case flagMarkdown:
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			rendered, err := r.Render(query.Markdown(raw, results))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		default:
			if len(results) == 0 {
				fmt.Fprintf(out, "No results for %q\n", raw)
				return nil
			}
			fmt.Fprintln(out, resultTable(results))
		}
		return nil
	},
}

func resultTable(results []query.Result) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LOCATION", "SOURCE", "KIND", "SYMBOL", "EXCERPT")
	for _, r := range results {
		loc := r.Path + ":" + strconv.Itoa(r.StartLine)
		t.Row(loc, string(r.Source), r.Kind, r.Symbol, truncate(r.Excerpt, 80))
	}
	return t.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func init() {
	queryCmd.Flags().IntVarP(&flagLimit, "limit", "n", 0, "maximum results (default query.default_limit)")
	queryCmd.Flags().StringVar(&flagMode, "mode", "", "force a branch: symbol or text")
	queryCmd.Flags().BoolVar(&flagJSON, "json", false, "print results as JSON")
	queryCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "render results as markdown")
	queryCmd.MarkFlagsMutuallyExclusive("json", "markdown")
	rootCmd.AddCommand(queryCmd)
}
