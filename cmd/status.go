package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flagStatusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd.Context(), cwd(), false)
		if err != nil {
			return err
		}
		defer eng.Close()

		st, err := eng.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagStatusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		last := "never"
		if !st.LastIndexedAt.IsZero() {
			last = fmt.Sprintf("%s (took %s)", st.LastIndexedAt.Local().Format(time.DateTime),
				time.Duration(st.LastIndexDurationMs)*time.Millisecond)
		}
		fmt.Fprintf(out, "Root:      %s\n", st.Root)
		fmt.Fprintf(out, "Database:  %s (schema v%d)\n", st.DBPath, st.SchemaVersion)
		fmt.Fprintf(out, "Files:     %d (%d degraded)\n", st.FileCount, st.DegradedCount)
		fmt.Fprintf(out, "Symbols:   %d\n", st.SymbolCount)
		fmt.Fprintf(out, "Calls:     %d\n", st.CallCount)
		fmt.Fprintf(out, "Imports:   %d\n", st.ImportCount)
		fmt.Fprintf(out, "Chunks:    %d\n", st.ChunkCount)
		fmt.Fprintf(out, "Indexed:   %s\n", last)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "print status as JSON")
	rootCmd.AddCommand(statusCmd)
}
