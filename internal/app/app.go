// Package app assembles the quoting stack from configuration. Both binaries
// build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/pipeline"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
	"github.com/joseph-ayodele/drawing-quotes/internal/repository"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

type App struct {
	Config    *common.Config
	Reader    *reader.Reader
	Engine    *estimate.Engine
	Chunks    repository.ChunkRepository
	Builder   *knowledge.Builder
	Retriever *knowledge.Retriever
	Store     *quotes.Store
	Service   *pipeline.Service

	indexDB *repository.DB
	quoteDB *repository.DB
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	readerOpts  []reader.Option
	builderOpts []knowledge.BuilderOption
	memoryIndex bool
}

// WithReaderOptions passes options through to the document reader.
func WithReaderOptions(opts ...reader.Option) Option {
	return func(o *options) { o.readerOpts = append(o.readerOpts, opts...) }
}

func WithBuilderOptions(opts ...knowledge.BuilderOption) Option {
	return func(o *options) { o.builderOpts = append(o.builderOpts, opts...) }
}

// WithMemoryIndex keeps the chunk index in an in-memory SQLite database.
func WithMemoryIndex() Option {
	return func(o *options) { o.memoryIndex = true }
}

func NewReaderConfig(cfg common.ReaderConfig) reader.Config {
	return reader.Config{
		TesseractLang: cfg.TesseractLang,
		TessdataDir:   cfg.TessdataDir,
		DPI:           cfg.DPI,
		MaxPages:      cfg.MaxPages,
		MinPageChars:  cfg.MinPageChars,
		PDFBackend:    cfg.PDFBackend,
		Timeout:       cfg.Timeout,
		DisableCAD:    !cfg.CADEnabled,
		RequireOCR:    cfg.RequireOCR,
	}
}

// New opens the chunk index, loads the rate tables and wires the pipeline.
// Quotes are persisted to Postgres when a DSN is configured.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	a := &App{Config: cfg, logger: logger}
	a.Reader = reader.NewReader(NewReaderConfig(cfg.Reader), logger, o.readerOpts...)

	tables, err := estimate.LoadTables(cfg.Quotes.TablesPath, logger)
	if err != nil {
		return nil, err
	}
	a.Engine = estimate.NewEngine(tables, logger)

	if o.memoryIndex {
		a.indexDB, err = repository.OpenMemory(ctx, logger)
	} else {
		a.indexDB, err = repository.OpenSQLite(ctx, cfg.Knowledge.IndexPath, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open knowledge index: %w", err)
	}
	a.Chunks = repository.NewChunkRepository(a.indexDB, logger)
	a.Builder = knowledge.NewBuilder(a.Reader, a.Chunks, logger, o.builderOpts...)

	ix, err := a.Builder.Load(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Retriever = knowledge.NewRetriever(ix, logger)

	var storeOpts []quotes.Option
	if strings.TrimSpace(cfg.Database.DSN) != "" {
		a.quoteDB, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open quote store: %w", err)
		}
		storeOpts = append(storeOpts, quotes.WithPersister(repository.NewQuoteRepository(a.quoteDB, logger)))
	}
	a.Store = quotes.NewStore(a.Engine, logger, storeOpts...)

	a.Service = pipeline.NewService(
		a.Reader,
		signals.NewExtractor(logger),
		a.Retriever,
		a.Engine,
		a.Store,
		logger,
		pipeline.WithReferencesTopK(cfg.Quotes.ReferencesTopK),
	)

	logger.Info("app.ready",
		"index", cfg.Knowledge.IndexPath,
		"chunks", ix.Len(),
		"tables", tables.Version,
		"persistent_quotes", a.quoteDB != nil,
	)
	return a, nil
}

// Rebuild re-indexes the corpus directory and swaps the live snapshot.
func (a *App) Rebuild(ctx context.Context, root string) ([]knowledge.FileResult, knowledge.BuildStats, error) {
	ix, results, stats, err := a.Builder.Build(ctx, root)
	if err != nil {
		return results, stats, err
	}
	a.Retriever.Swap(ix)
	return results, stats, nil
}

// Watcher returns a corpus watcher bound to this app's builder and retriever.
func (a *App) Watcher() *knowledge.Watcher {
	return knowledge.NewWatcher(knowledge.WatchConfig{
		Root:     a.Config.Knowledge.CorpusDir,
		Debounce: a.Config.Knowledge.Debounce,
	}, a.Builder, a.Retriever, a.logger)
}

// QuoteDB is the Postgres quote store, or nil when quotes live in memory.
func (a *App) QuoteDB() *repository.DB {
	return a.quoteDB
}

func (a *App) Close() {
	if a.quoteDB != nil {
		a.quoteDB.Close()
	}
	if a.indexDB != nil {
		a.indexDB.Close()
	}
}
