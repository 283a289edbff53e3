package cmd

import (
	"context"

	"codescope/internal/tui"
)

func runTUI(ctx context.Context) error {
	// The alternate screen owns the terminal, so logs are dropped.
	eng, err := openEngine(ctx, cwd(), true)
	if err != nil {
		return err
	}
	defer eng.Close()

	return tui.Run(ctx, eng)
}
