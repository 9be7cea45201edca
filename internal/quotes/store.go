package quotes

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// Persister writes quotes through to durable storage.
type Persister interface {
	Save(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id string) (*Quote, error)
	List(ctx context.Context) ([]*Quote, error)
}

// CreateRequest describes a new quote. Result is computed from Signals when nil.
type CreateRequest struct {
	Document   Document
	Signals    signals.Set
	References []knowledge.Match
	Result     *estimate.Result
	Warnings   []string
}

type entry struct {
	mu    sync.Mutex
	quote *Quote
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	engine  *estimate.Engine
	persist Persister
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

type Option func(*Store)

// WithPersister enables write-through persistence and read-through on Get.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persist = p
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(engine *estimate.Engine, logger *slog.Logger, opts ...Option) *Store {
	if engine == nil {
		engine = estimate.NewEngine(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		entries: map[string]*entry{},
		engine:  engine,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create estimates (unless a result is supplied) and stores a new quote
// under a fresh uuid v4.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Quote, error) {
	set := req.Signals.Clone()
	res := req.Result
	if res == nil {
		var err error
		if res, err = s.engine.Quote(set); err != nil {
			return nil, err
		}
	}

	now := s.now()
	q := &Quote{
		Document:   req.Document,
		Signals:    set,
		Inferred:   res.Inferred.Clone(),
		References: append([]knowledge.Match(nil), req.References...),
		Estimate:   res.Estimate,
		Confidence: res.Confidence,
		Warnings:   append([]string(nil), req.Warnings...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if q.References == nil {
		q.References = []knowledge.Match{}
	}

	e := &entry{quote: q}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	for {
		q.ID = s.newID()
		if _, taken := s.entries[q.ID]; !taken {
			break
		}
	}
	s.entries[q.ID] = e
	s.mu.Unlock()

	if err := s.save(ctx, q); err != nil {
		s.mu.Lock()
		delete(s.entries, q.ID)
		s.mu.Unlock()
		return nil, err
	}
	s.logger.Info("quotes.created",
		"quote_id", q.ID,
		"file", q.Document.Filename,
		"status", q.Estimate.Status,
	)
	return q.Clone(), nil
}

// Get returns a snapshot of the quote, loading it from the persister when it
// is not held in memory.
func (s *Store) Get(ctx context.Context, id string) (*Quote, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.Clone(), nil
}

// Update merges additional signals over the accepted ones (additional wins),
// re-estimates and replaces the estimate. On any error the quote is unchanged.
func (s *Store) Update(ctx context.Context, id string, additional signals.Set) (*Quote, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := signals.Merge(e.quote.Signals, additional)
	res, err := s.engine.Quote(merged)
	if err != nil {
		return nil, err
	}

	next := e.quote.Clone()
	next.Signals = merged
	next.Inferred = res.Inferred
	next.Estimate = res.Estimate
	next.Confidence = res.Confidence
	next.UpdatedAt = s.now()
	if err := s.save(ctx, next); err != nil {
		return nil, err
	}
	e.quote = next

	s.logger.Info("quotes.updated",
		"quote_id", id,
		"added", additional.Names(),
		"status", next.Estimate.Status,
	)
	return next.Clone(), nil
}

// List returns every quote ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Quote, error) {
	if s.persist != nil {
		return s.persist.List(ctx)
	}
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Quote, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.quote.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) entry(ctx context.Context, id string) (*entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.NotFound("quote_id", id)
	}
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if s.persist == nil {
		return nil, common.NotFound("quote_id", id)
	}

	q, err := s.persist.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NotFound("quote_id", id)
		}
		return nil, common.Internal("load quote", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another caller may have loaded it meanwhile
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	e = &entry{quote: q}
	s.entries[id] = e
	return e, nil
}

func (s *Store) save(ctx context.Context, q *Quote) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(ctx, q); err != nil {
		s.logger.Error("quotes.persist.failed", "quote_id", q.ID, "error", err)
		return common.Internal("persist quote", err)
	}
	return nil
}
