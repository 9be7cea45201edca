package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
)

// DocumentReader extracts per-page text from a PDF on disk.
type DocumentReader interface {
	ReadFile(ctx context.Context, path string) (*reader.RawDocument, error)
}

// Store persists chunks per source.
type Store interface {
	ReplaceSource(ctx context.Context, source string, chunks []Chunk) error
	DeleteSource(ctx context.Context, source string) error
	All(ctx context.Context) ([]Chunk, error)
}

// FileResult is the outcome of indexing one corpus file.
type FileResult struct {
	Path   string
	Source string
	Chunks int
	Err    string
}

// BuildStats aggregates a corpus walk.
type BuildStats struct {
	Scanned   int
	Matched   int
	Succeeded int
	Failed    int
	Removed   int
	Chunks    int
	Duration  time.Duration
}

// DefaultExcludes are skipped in every corpus walk.
var DefaultExcludes = []string{".git/**", "**/.*", "**/~$*"}

type Builder struct {
	reader   DocumentReader
	store    Store
	chunker  Chunker
	include  []string
	exclude  []string
	progress func(done, total int)
	logger   *slog.Logger
}

type BuilderOption func(*Builder)

// WithPatterns restricts the walk to include globs (all reference files when
// empty) minus exclude globs. Patterns are doublestar globs on slash paths
// relative to the corpus root.
func WithPatterns(include, exclude []string) BuilderOption {
	return func(b *Builder) {
		b.include = include
		b.exclude = append(append([]string(nil), DefaultExcludes...), exclude...)
	}
}

func WithChunker(c Chunker) BuilderOption {
	return func(b *Builder) {
		b.chunker = c
	}
}

// WithProgress is called after each matched file.
func WithProgress(fn func(done, total int)) BuilderOption {
	return func(b *Builder) {
		b.progress = fn
	}
}

func NewBuilder(rd DocumentReader, store Store, logger *slog.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		reader:  rd,
		store:   store,
		chunker: NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		exclude: DefaultExcludes,
		logger:  logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build indexes every matching reference file under root, drops stored
// sources whose file is gone, and returns a snapshot of the whole store.
// A file that fails to index is reported and skipped.
func (b *Builder) Build(ctx context.Context, root string) (*Index, []FileResult, BuildStats, error) {
	start := time.Now()
	var stats BuildStats
	if strings.TrimSpace(root) == "" {
		return nil, nil, stats, errors.New("corpus root is required")
	}

	paths, scanned, err := b.discover(root)
	stats.Scanned = scanned
	if err != nil {
		return nil, nil, stats, err
	}
	stats.Matched = len(paths)

	seen := map[string]struct{}{}
	results := make([]FileResult, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, results, stats, err
		}
		res := b.IndexFile(ctx, root, path)
		seen[res.Source] = struct{}{}
		results = append(results, res)
		if res.Err != "" {
			stats.Failed++
		} else {
			stats.Succeeded++
			stats.Chunks += res.Chunks
		}
		if b.progress != nil {
			b.progress(i+1, len(paths))
		}
	}

	all, err := b.store.All(ctx)
	if err != nil {
		return nil, results, stats, fmt.Errorf("load chunks: %w", err)
	}
	kept := all[:0]
	removed := map[string]struct{}{}
	for _, c := range all {
		if _, ok := seen[c.Source]; ok {
			kept = append(kept, c)
			continue
		}
		if _, done := removed[c.Source]; !done {
			if err := b.store.DeleteSource(ctx, c.Source); err != nil {
				return nil, results, stats, fmt.Errorf("prune %s: %w", c.Source, err)
			}
			removed[c.Source] = struct{}{}
		}
	}
	stats.Removed = len(removed)

	ix := NewIndex(kept)
	stats.Duration = time.Since(start)
	b.logger.Info("knowledge.build.ok",
		"root", root,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"removed", stats.Removed,
		"chunks", ix.Len(),
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return ix, results, stats, nil
}

// Load returns a snapshot of what the store already holds.
func (b *Builder) Load(ctx context.Context) (*Index, error) {
	all, err := b.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return NewIndex(all), nil
}

// IndexFile extracts, chunks and stores one file, replacing its previous chunks.
func (b *Builder) IndexFile(ctx context.Context, root, path string) FileResult {
	source := SourceName(root, path)
	res := FileResult{Path: path, Source: source}

	pages, err := b.pages(ctx, path)
	if err != nil {
		b.logger.Warn("knowledge.file.failed", "path", path, "error", err)
		res.Err = err.Error()
		return res
	}
	chunks := b.chunker.ChunkPages(source, pages)
	if err := b.store.ReplaceSource(ctx, source, chunks); err != nil {
		b.logger.Error("knowledge.file.store_failed", "source", source, "error", err)
		res.Err = err.Error()
		return res
	}
	res.Chunks = len(chunks)
	b.logger.Debug("knowledge.file.ok", "source", source, "pages", len(pages), "chunks", len(chunks))
	return res
}

// RemoveFile drops the chunks of a deleted corpus file.
func (b *Builder) RemoveFile(ctx context.Context, root, path string) error {
	return b.store.DeleteSource(ctx, SourceName(root, path))
}

func (b *Builder) pages(ctx context.Context, path string) ([]string, error) {
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "pdf":
		if b.reader == nil {
			return nil, errors.New("no document reader configured for pdf")
		}
		doc, err := b.reader.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		pages := make([]string, len(doc.Pages))
		for i, p := range doc.Pages {
			pages[i] = p.Text
		}
		return pages, nil
	case "md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return MarkdownPages(data), nil
	case "txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// form feeds separate pages in text exports
		return strings.Split(string(data), "\f"), nil
	}
	return nil, fmt.Errorf("unsupported reference file %s", filepath.Base(path))
}

// Matches reports whether rel (slash-separated, relative to the corpus root)
// is a reference file selected by the builder's patterns.
func (b *Builder) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	if _, ok := constants.ReferenceExtensions[constants.NormalizeExt(filepath.Ext(rel))]; !ok {
		return false
	}
	if len(b.include) > 0 && !matchesAny(rel, b.include) {
		return false
	}
	return !matchesAny(rel, b.exclude)
}

func (b *Builder) discover(root string) ([]string, int, error) {
	var paths []string
	scanned := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			b.logger.Warn("knowledge.walk.error", "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		scanned++
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if b.Matches(rel) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, scanned, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, scanned, nil
}

// SourceName is the stored source of a corpus file: its slash path relative
// to root, or its base name when it lies outside root.
func SourceName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func matchesAny(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, err := doublestar.PathMatch(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := doublestar.PathMatch(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}
