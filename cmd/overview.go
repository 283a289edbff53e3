package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	flagOverviewTop  int
	flagOverviewJSON bool
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Summarize languages, most-called definitions and text-only files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		ov, err := eng.Overview(cmd.Context(), flagOverviewTop)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagOverviewJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ov)
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return err
		}
		rendered, err := r.Render(ov.Markdown())
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	overviewCmd.Flags().IntVar(&flagOverviewTop, "top", 10, "number of most-called definitions to list")
	overviewCmd.Flags().BoolVar(&flagOverviewJSON, "json", false, "print the overview as JSON")
	rootCmd.AddCommand(overviewCmd)
}
