package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
)

// QuoteRepository stores quote sessions. It satisfies quotes.Persister.
type QuoteRepository interface {
	Save(ctx context.Context, q *quotes.Quote) error
	Get(ctx context.Context, id string) (*quotes.Quote, error)
	List(ctx context.Context) ([]*quotes.Quote, error)
}

type quoteRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewQuoteRepository(db *DB, logger *slog.Logger) QuoteRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &quoteRepository{db: db, logger: logger}
}

var quoteColumns = []string{
	"id", "filename", "format", "sha256", "signals", "inferred", "refs", "estimate",
	"status", "confidence", "cost_usd", "lead_time_days", "warnings", "created_at", "updated_at",
}

// Save inserts the quote or replaces every column of an existing row.
func (r *quoteRepository) Save(ctx context.Context, q *quotes.Quote) error {
	sigJSON, err := json.Marshal(q.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	infJSON, err := json.Marshal(q.Inferred)
	if err != nil {
		return fmt.Errorf("marshal inferred: %w", err)
	}
	refJSON, err := json.Marshal(q.References)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	estJSON, err := json.Marshal(q.Estimate)
	if err != nil {
		return fmt.Errorf("marshal estimate: %w", err)
	}
	warnJSON, err := json.Marshal(q.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	var (
		status   string
		cost     sql.NullFloat64
		leadTime sql.NullInt64
	)
	if q.Estimate != nil {
		status = string(q.Estimate.Status)
		if q.Estimate.Complete() {
			cost = sql.NullFloat64{Float64: q.Estimate.CostUSD, Valid: true}
			leadTime = sql.NullInt64{Int64: int64(q.Estimate.LeadTimeDays), Valid: true}
		}
	}

	query, args := r.db.builder().Insert("quotes").
		Columns(quoteColumns...).
		Values(
			q.ID, q.Document.Filename, string(q.Document.Format), q.Document.SHA256,
			string(sigJSON), string(infJSON), string(refJSON), string(estJSON),
			status, string(q.Confidence), cost, leadTime, string(warnJSON),
			q.CreatedAt.UTC().Format(time.RFC3339Nano), q.UpdatedAt.UTC().Format(time.RFC3339Nano),
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to save quote", "quote_id", q.ID, "error", err)
		return fmt.Errorf("save quote: %w", err)
	}
	return nil
}

func (r *quoteRepository) Get(ctx context.Context, id string) (*quotes.Quote, error) {
	b := r.db.builder()
	query, args := b.Select(quoteColumns...).
		From(b.Table("quotes")).
		Where(entsql.EQ("id", id)).
		Query()
	out, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFound("quote_id", id)
	}
	return out[0], nil
}

func (r *quoteRepository) List(ctx context.Context) ([]*quotes.Quote, error) {
	b := r.db.builder()
	query, args := b.Select(quoteColumns...).
		From(b.Table("quotes")).
		OrderBy("created_at", "id").
		Query()
	return r.query(ctx, query, args)
}

func (r *quoteRepository) query(ctx context.Context, query string, args []any) ([]*quotes.Quote, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	var out []*quotes.Quote
	for rows.Next() {
		q, err := scanQuote(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuote(rows *entsql.Rows) (*quotes.Quote, error) {
	var (
		q                                     quotes.Quote
		format, sigJSON, infJSON, refJSON     string
		estJSON, status, confidence, warnJSON string
		cost                                  sql.NullFloat64
		leadTime                              sql.NullInt64
		createdAt, updatedAt                  string
	)
	if err := rows.Scan(
		&q.ID, &q.Document.Filename, &format, &q.Document.SHA256,
		&sigJSON, &infJSON, &refJSON, &estJSON,
		&status, &confidence, &cost, &leadTime, &warnJSON,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan quote: %w", err)
	}
	q.Document.Format = constants.Format(format)
	q.Confidence = estimate.Confidence(confidence)

	if err := json.Unmarshal([]byte(sigJSON), &q.Signals); err != nil {
		return nil, fmt.Errorf("quote %s signals: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(infJSON), &q.Inferred); err != nil {
		return nil, fmt.Errorf("quote %s inferred: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(refJSON), &q.References); err != nil {
		return nil, fmt.Errorf("quote %s references: %w", q.ID, err)
	}
	q.Estimate = &estimate.Estimate{}
	if err := json.Unmarshal([]byte(estJSON), q.Estimate); err != nil {
		return nil, fmt.Errorf("quote %s estimate: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(warnJSON), &q.Warnings); err != nil {
		return nil, fmt.Errorf("quote %s warnings: %w", q.ID, err)
	}

	var err error
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("quote %s created_at: %w", q.ID, err)
	}
	if q.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("quote %s updated_at: %w", q.ID, err)
	}
	return &q, nil
}
