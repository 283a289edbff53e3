package cmd

import (
	"fmt"
	"strconv"

	"codescope/internal/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var flagGraphLimit int

var callersCmd = &cobra.Command{
	Use:   "callers <name>",
	Short: "List call sites of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		hits, err := eng.Callers(cmd.Context(), args[0], flagGraphLimit)
		if err != nil {
			return err
		}
		printCalls(cmd, args[0], hits)
		return nil
	},
}

var calleesCmd = &cobra.Command{
	Use:   "callees <name>",
	Short: "List the calls made by a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		hits, err := eng.Callees(cmd.Context(), args[0], flagGraphLimit)
		if err != nil {
			return err
		}
		printCalls(cmd, args[0], hits)
		return nil
	},
}

var importersCmd = &cobra.Command{
	Use:   "importers <module>",
	Short: "List files importing a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		rows, err := eng.Importers(cmd.Context(), args[0], flagGraphLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(rows) == 0 {
			fmt.Fprintf(out, "No files import %q\n", args[0])
			return nil
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%s:%d\t%s\n", r.Path, r.Line, r.Module)
		}
		return nil
	},
}

func printCalls(cmd *cobra.Command, name string, hits []store.CallHit) {
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintf(out, "No calls found for %q\n", name)
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LOCATION", "CALLER", "CALLEE", "DEFINED IN", "EXCERPT")
	for _, h := range hits {
		def := h.CalleePath
		if def == "" {
			def = "(unresolved)"
		}
		t.Row(h.Path+":"+strconv.Itoa(h.Line), h.Caller, h.Callee, def, truncate(h.Excerpt, 60))
	}
	fmt.Fprintln(out, t.String())
}

func init() {
	for _, c := range []*cobra.Command{callersCmd, calleesCmd, importersCmd} {
		c.Flags().IntVarP(&flagGraphLimit, "limit", "n", 0, "maximum results (default query.default_limit)")
		rootCmd.AddCommand(c)
	}
}
