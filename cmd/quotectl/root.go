package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/app"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

var (
	jsonOut bool
	verbose bool
	cfg     *common.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quotectl",
	Short: "Quote machined parts from drawings and CAD files",
	Long: `quotectl reads engineering drawings (PDF, scans, STEP), extracts the
manufacturing signals a shop prices on, and produces a cost and lead time
estimate with supporting excerpts from the reference corpus.

Configuration comes from the environment (and a .env file when present);
see DB_URL, KNOWLEDGE_INDEX, KNOWLEDGE_CORPUS_DIR and QUOTE_TABLES.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = common.LoadConfig()
		if !verbose && cfg.Log.Level == "info" {
			cfg.Log.Level = "warn"
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger = common.NewLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
