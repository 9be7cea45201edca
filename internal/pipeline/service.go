// Package pipeline wires the reader, extractor, retriever, estimator and
// session store into the quoting operations exposed by the binaries.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/export"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// DocumentReader turns an upload into a RawDocument.
type DocumentReader interface {
	Read(ctx context.Context, filename string, data []byte) (*reader.RawDocument, error)
	Probe() reader.Capabilities
}

// IngestRequest is one upload. Material and Qty are shorthand overrides;
// an entry for the same signal in Overrides wins over them.
type IngestRequest struct {
	Filename  string
	Content   []byte
	Material  string
	Qty       string
	Overrides map[string]string
}

// Health summarises what this process can currently do.
type Health struct {
	Capabilities  reader.Capabilities `json:"capabilities"`
	Index         knowledge.Stats     `json:"index"`
	Quotes        int                 `json:"quotes"`
	TablesVersion string              `json:"tables_version"`
}

type Service struct {
	reader    DocumentReader
	extractor *signals.Extractor
	retriever *knowledge.Retriever
	engine    *estimate.Engine
	store     *quotes.Store
	exporter  *export.Service
	refsTopK  int
	logger    *slog.Logger
}

type Option func(*Service)

// WithReferencesTopK sets how many reference chunks are attached to a quote.
func WithReferencesTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.refsTopK = k
		}
	}
}

func NewService(
	rd DocumentReader,
	extractor *signals.Extractor,
	retriever *knowledge.Retriever,
	engine *estimate.Engine,
	store *quotes.Store,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = signals.NewExtractor(logger)
	}
	if retriever == nil {
		retriever = knowledge.NewRetriever(nil, logger)
	}
	if engine == nil {
		engine = estimate.NewEngine(nil, logger)
	}
	if store == nil {
		store = quotes.NewStore(engine, logger)
	}
	s := &Service{
		reader:    rd,
		extractor: extractor,
		retriever: retriever,
		engine:    engine,
		store:     store,
		exporter:  export.NewService(store, logger),
		refsTopK:  5,
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IngestAndQuote reads the upload, extracts signals, prices them and stores
// a new quote with its reference chunks. Any read failure aborts the call
// before a quote exists. An Incomplete estimate is a normal result.
func (s *Service) IngestAndQuote(ctx context.Context, req IngestRequest) (*quotes.Quote, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)

	v := common.NewValidator().
		Field("filename", req.Filename, common.Required)
	if err := v.AsError(common.KindInvalidArgument); err != nil {
		return nil, err
	}
	if len(req.Content) == 0 {
		return nil, common.InvalidArgument("content", "file is empty")
	}
	if s.reader == nil {
		return nil, common.CapabilityUnavailable(common.CapabilityPDF, errors.New("no document reader configured"))
	}

	overrides := requestOverrides(req)
	// reject bad overrides before paying for extraction
	if _, err := signals.ParseOverrides(overrides); err != nil {
		return nil, err
	}

	doc, err := s.reader.Read(ctx, req.Filename, req.Content)
	if err != nil {
		log.Warn("pipeline.ingest.read_failed", "file", req.Filename, "error", err)
		return nil, err
	}
	set, err := s.extractor.Extract(doc, overrides)
	if err != nil {
		return nil, err
	}

	refs, res, err := s.referencesAndEstimate(ctx, set)
	if err != nil {
		log.Warn("pipeline.ingest.estimate_failed", "file", req.Filename, "error", err)
		return nil, err
	}

	q, err := s.store.Create(ctx, quotes.CreateRequest{
		Document: quotes.Document{
			Filename: doc.Filename,
			Format:   doc.Format,
			SHA256:   doc.SHA256,
		},
		Signals:    set,
		References: refs,
		Result:     res,
		Warnings:   doc.Warnings,
	})
	if err != nil {
		return nil, err
	}

	log.Info("pipeline.ingest.ok",
		"quote_id", q.ID,
		"file", req.Filename,
		"format", doc.Format,
		"signals", len(set),
		"status", q.Estimate.Status,
		"references", len(refs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return q, nil
}

// referencesAndEstimate runs retrieval and estimation side by side. Retrieval
// never fails the quote; estimation errors do.
func (s *Service) referencesAndEstimate(ctx context.Context, set signals.Set) ([]knowledge.Match, *estimate.Result, error) {
	var (
		refs []knowledge.Match
		res  *estimate.Result
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.retriever.SearchBySignals(set, s.refsTopK)
		if err != nil {
			s.logger.Warn("pipeline.references.failed", "error", err)
			return nil
		}
		refs = r.Matches
		return nil
	})
	g.Go(func() error {
		var err error
		res, err = s.engine.Quote(set)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return refs, res, nil
}

// CompleteQuote parses the caller's answers as overrides and folds them into
// the quote. Accepted signals that are not answered again stay unchanged.
func (s *Service) CompleteQuote(ctx context.Context, quoteID string, answers map[string]string) (*quotes.Quote, error) {
	ctx = common.WithQuoteID(ctx, quoteID)
	log := common.LoggerFrom(ctx, s.logger)

	// unknown ids fail before answers are judged
	if _, err := s.store.Get(ctx, quoteID); err != nil {
		return nil, err
	}
	additional, err := signals.ParseOverrides(answers)
	if err != nil {
		return nil, err
	}
	q, err := s.store.Update(ctx, quoteID, additional)
	if err != nil {
		log.Warn("pipeline.complete.failed", "error", err)
		return nil, err
	}
	log.Info("pipeline.complete.ok",
		"answers", len(additional),
		"status", q.Estimate.Status,
	)
	return q, nil
}

// Ask searches the reference corpus directly.
func (s *Service) Ask(ctx context.Context, question string, topK int) (*knowledge.Result, error) {
	res, err := s.retriever.Search(question, topK)
	if err != nil {
		return nil, err
	}
	common.LoggerFrom(ctx, s.logger).Info("pipeline.ask.ok", "top_k", topK, "results", len(res.Matches))
	return res, nil
}

func (s *Service) GetQuote(ctx context.Context, quoteID string) (*quotes.Quote, error) {
	return s.store.Get(ctx, quoteID)
}

func (s *Service) ListQuotes(ctx context.Context) ([]*quotes.Quote, error) {
	return s.store.List(ctx)
}

// Sources lists the indexed reference documents.
func (s *Service) Sources() []knowledge.SourceInfo {
	return s.retriever.Sources()
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Index:         s.retriever.Stats(),
		Quotes:        s.store.Len(),
		TablesVersion: s.engine.Tables().Version,
	}
	if s.reader != nil {
		h.Capabilities = s.reader.Probe()
	}
	return h
}

// ExportQuotes renders every stored quote as an XLSX workbook.
func (s *Service) ExportQuotes(ctx context.Context) ([]byte, error) {
	return s.exporter.ExportQuotesXLSX(ctx)
}

func requestOverrides(req IngestRequest) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(req.Material) != "" {
		out[string(constants.SignalMaterial)] = req.Material
	}
	if strings.TrimSpace(req.Qty) != "" {
		out[string(constants.SignalQty)] = req.Qty
	}
	for k, v := range req.Overrides {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
