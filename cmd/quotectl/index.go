package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/drawing-quotes/internal/app"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
)

var indexCmd = &cobra.Command{
	Use:   "index [corpus-dir]",
	Short: "Build or refresh the reference corpus index",
	Long: `Walks the corpus directory (KNOWLEDGE_CORPUS_DIR by default), chunks every
PDF, Markdown and text file, and stores the chunks in the SQLite index at
KNOWLEDGE_INDEX. Files already indexed are replaced; files no longer present
are dropped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringSlice("include", nil, "only index files matching these globs")
	indexCmd.Flags().StringSlice("exclude", nil, "skip files matching these globs")
	indexCmd.Flags().Int("chunk-size", knowledge.DefaultChunkSize, "chunk size in characters")
	indexCmd.Flags().Int("chunk-overlap", knowledge.DefaultChunkOverlap, "overlap between chunks in characters")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	size, _ := cmd.Flags().GetInt("chunk-size")
	overlap, _ := cmd.Flags().GetInt("chunk-overlap")

	root := cfg.Knowledge.CorpusDir
	if len(args) == 1 {
		root = args[0]
	}

	bar := newBarProgress("Indexing")
	ctx := cmd.Context()
	a, err := openApp(ctx, app.WithBuilderOptions(
		knowledge.WithPatterns(include, exclude),
		knowledge.WithChunker(knowledge.NewChunker(size, overlap)),
		knowledge.WithProgress(bar.Update),
	))
	if err != nil {
		return err
	}
	defer a.Close()

	results, stats, err := a.Rebuild(ctx, root)
	bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, map[string]any{"stats": stats, "files": results})
	}
	for _, r := range results {
		if r.Err != "" {
			printf(out, "FAIL %s: %s\n", r.Source, r.Err)
		}
	}
	printf(out, "indexed %d/%d files, %d chunks, %d removed in %s\n",
		stats.Succeeded, stats.Matched, stats.Chunks, stats.Removed, stats.Duration.Round(time.Millisecond))
	return nil
}
