package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codescope/internal/index"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	flagWorkers int
	flagForce   bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a source tree, or a directory inside an indexed tree",
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

		eng, err := openEngine(cmd.Context(), dir, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		fmt.Fprintf(os.Stderr, "Indexing %s...\n", dir)
		bar := newIndexBar()
		sum, err := eng.Index(cmd.Context(), dir, index.Options{
			Force:    flagForce,
			Workers:  flagWorkers,
			Progress: bar.update,
		})
		bar.finish()

		printSummary(cmd, sum)
		return err
	},
}

func init() {
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (default index.workers)")
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "re-parse files even when unchanged")
	rootCmd.AddCommand(indexCmd)
}

// indexBar shows a progress bar on stderr once the file count is known.
type indexBar struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newIndexBar() *indexBar {
	return &indexBar{}
}

func (b *indexBar) update(stage string, current, total int) {
	if stage != "indexing" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Indexing files"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = b.bar.Set(current)
}

func (b *indexBar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

func printSummary(cmd *cobra.Command, sum index.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Done in %s (run %s)\n", sum.Duration.Round(time.Millisecond), sum.RunID)
	fmt.Fprintf(out, "  Files:    %d seen, %d indexed, %d degraded, %d unchanged\n",
		sum.FilesTotal, sum.FilesIndexed, sum.FilesDegraded, sum.FilesSkipped)
	fmt.Fprintf(out, "  Skipped:  %d excluded, %d failed, %d deleted\n",
		sum.FilesExcluded, sum.FilesFailed, sum.FilesDeleted)
	fmt.Fprintf(out, "  Calls:    %d resolved\n", sum.CallsResolved)
}
