package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/app"
	"github.com/joseph-ayodele/drawing-quotes/internal/export"
	"github.com/joseph-ayodele/drawing-quotes/internal/pipeline"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Quote every drawing in a directory and export a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().String("out", "", "output XLSX path (default <dir>/../quotes.xlsx)")
	batchCmd.Flags().Int("workers", 4, "concurrent files")
	batchCmd.Flags().StringSlice("ext", nil, "only these extensions (default: every supported format)")
	batchCmd.Flags().StringToString("set", nil, "signal override applied to every file, name=value")
	batchCmd.Flags().Bool("inmem", false, "use an in-memory knowledge index")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	outPath, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	overrides, _ := cmd.Flags().GetStringToString("set")
	inmem, _ := cmd.Flags().GetBool("inmem")
	if outPath == "" {
		outPath = filepath.Join(filepath.Dir(filepath.Clean(dir)), "quotes.xlsx")
	}

	var opts []app.Option
	if inmem {
		opts = append(opts, app.WithMemoryIndex())
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := newBarProgress("Quoting")
	items, stats, err := a.Service.IngestDirectory(ctx, dir, pipeline.BatchOptions{
		Workers:     workers,
		Timeout:     cfg.Reader.Timeout,
		IncludeExts: exts,
		SkipHidden:  true,
		Overrides:   overrides,
		Progress:    bar.Update,
	})
	bar.Finish()
	if err != nil {
		return err
	}

	var list []*quotes.Quote
	for _, it := range items {
		if it.Quote != nil {
			list = append(list, it.Quote)
		}
	}
	xlsx, err := export.NewService(a.Store, logger).QuotesXLSX(list)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, xlsx, 0o644); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{"stats": stats, "items": items, "xlsx": outPath})
	}
	for _, it := range items {
		if it.Err != "" {
			printf(out, "FAIL %s: %s\n", it.Path, it.Err)
		}
	}
	printf(out, "%d files: %d complete, %d incomplete, %d failed -> %s\n",
		stats.Matched, stats.Complete, stats.Incomplete, stats.Failed, outPath)
	return nil
}
