package knowledge

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// Result is a ranked retrieval answer. An empty Matches is a valid answer.
type Result struct {
	Query   string  `json:"query"`
	Matches []Match `json:"results"`
}

// Stats describes the live snapshot.
type Stats struct {
	Chunks  int       `json:"chunks"`
	Sources int       `json:"sources"`
	BuiltAt time.Time `json:"built_at"`
}

// Retriever serves lock-free reads from the current snapshot.
type Retriever struct {
	snap   atomic.Pointer[Index]
	floor  float64
	logger *slog.Logger
}

type RetrieverOption func(*Retriever)

// WithRelevanceFloor drops matches scoring at or below floor.
func WithRelevanceFloor(floor float64) RetrieverOption {
	return func(r *Retriever) {
		if floor >= 0 {
			r.floor = floor
		}
	}
}

// NewRetriever serves ix; a nil ix behaves as an empty index.
func NewRetriever(ix *Index, logger *slog.Logger, opts ...RetrieverOption) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if ix == nil {
		ix = NewIndex(nil)
	}
	r := &Retriever{logger: logger}
	for _, o := range opts {
		o(r)
	}
	r.snap.Store(ix)
	return r
}

// Swap atomically replaces the snapshot and returns the previous one.
// In-flight searches finish against the snapshot they started with.
func (r *Retriever) Swap(ix *Index) *Index {
	if ix == nil {
		ix = NewIndex(nil)
	}
	old := r.snap.Swap(ix)
	r.logger.Info("knowledge.swap",
		"chunks", ix.Len(),
		"sources", len(ix.sources),
		"previous_chunks", old.Len(),
	)
	return old
}

func (r *Retriever) Snapshot() *Index {
	return r.snap.Load()
}

// Search ranks chunks for a free-text query. topK is clamped to the index size.
func (r *Retriever) Search(query string, topK int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, common.InvalidArgument("query", "query must not be blank")
	}
	if topK <= 0 {
		return nil, common.InvalidArgument("top_k", "top_k must be positive")
	}
	ix := r.snap.Load()
	if topK > ix.Len() {
		topK = ix.Len()
	}
	start := time.Now()
	matches := ix.rank(Tokenize(query), topK, r.floor)
	if matches == nil {
		matches = []Match{}
	}
	r.logger.Debug("knowledge.search",
		"query", query,
		"top_k", topK,
		"results", len(matches),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Query: query, Matches: matches}, nil
}

// SearchBySignals searches with a query built from the quote's signals.
func (r *Retriever) SearchBySignals(set signals.Set, topK int) (*Result, error) {
	return r.Search(SignalQuery(set), topK)
}

// SignalQuery is the reference query for a quote: material pricing terms plus
// any tolerance or complexity class.
func SignalQuery(set signals.Set) string {
	var parts []string
	if m, ok := set.Text(constants.SignalMaterial); ok && m != "" {
		parts = append(parts, m, "rate cost multiplier lead time")
	} else {
		parts = append(parts, "machining rate cost lead time")
	}
	if t, ok := set.Text(constants.SignalTolerance); ok {
		parts = append(parts, t, "tolerance")
	}
	if c, ok := set.Text(constants.SignalComplexity); ok {
		parts = append(parts, c, "complexity")
	}
	return strings.Join(parts, " ")
}

func (r *Retriever) Sources() []SourceInfo {
	return r.snap.Load().Sources()
}

func (r *Retriever) Stats() Stats {
	ix := r.snap.Load()
	return Stats{Chunks: ix.Len(), Sources: len(ix.sources), BuiltAt: ix.BuiltAt()}
}
