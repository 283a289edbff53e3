package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"codescope/internal/config"
	"codescope/internal/index"
	"codescope/internal/logging"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "codescope",
	Short:         "Local code intelligence: symbols, call graph and full-text search",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <root>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default <root>/.codescope/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// findRoot walks up from dir to the nearest directory holding an index or
// a config file. Without one, dir itself is the root.
func findRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for d := abs; ; {
		for _, marker := range []string{".codescope", config.FileName} {
			if _, err := os.Stat(filepath.Join(d, marker)); err == nil {
				return d, nil
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return abs, nil
		}
		d = parent
	}
}

// loadConfig reads the config for root and applies the global flags.
func loadConfig(root string) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		db, err := filepath.Abs(flagDB)
		if err != nil {
			return nil, err
		}
		cfg.Storage.Path = db
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEngine resolves the root containing dir, loads its config and opens
// the index. Logs go to stderr unless quiet is set.
func openEngine(ctx context.Context, dir string, quiet bool) (*index.Engine, error) {
	root, err := findRoot(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	log := logging.Discard()
	if !quiet {
		log = logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	}
	return index.Open(ctx, root, cfg, log)
}

func cwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
