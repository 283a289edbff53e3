package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codescope/internal/index"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index once, then re-index files as they change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cwd()
		if len(args) == 1 {
			dir = args[0]
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := openEngine(ctx, dir, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		sum, err := eng.Index(ctx, "", index.Options{})
		if err != nil {
			return err
		}
		printSummary(cmd, sum)

		fmt.Fprintf(os.Stderr, "Watching %s (ctrl+c to stop)\n", eng.Root())
		if err := eng.Watch(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		if err := ctx.Err(); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
