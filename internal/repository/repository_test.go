package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestChunkRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(openTestDB(t), nil)

	require.NoError(t, repo.ReplaceSource(ctx, "rates.pdf", []knowledge.Chunk{
		{Source: "rates.pdf", Page: 1, Index: 0, Text: "aluminum 3.00 per lb"},
		{Source: "rates.pdf", Page: 1, Index: 1, Text: "steel 2.80 per lb"},
		{Source: "rates.pdf", Page: 2, Index: 0, Text: "setup 75"},
	}))
	require.NoError(t, repo.ReplaceSource(ctx, "guide.md", []knowledge.Chunk{
		{Source: "guide.md", Page: 1, Index: 0, Text: "tolerance guide"},
	}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "guide.md", all[0].Source)
	assert.Equal(t, knowledge.Chunk{Source: "rates.pdf", Page: 2, Index: 0, Text: "setup 75"}, all[3])

	sources, err := repo.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []knowledge.SourceInfo{
		{Source: "guide.md", Pages: 1, Chunks: 1},
		{Source: "rates.pdf", Pages: 2, Chunks: 3},
	}, sources)

	// replacing drops chunks the new version no longer has
	require.NoError(t, repo.ReplaceSource(ctx, "rates.pdf", []knowledge.Chunk{
		{Source: "rates.pdf", Page: 1, Index: 0, Text: "aluminum 3.25 per lb"},
	}))
	all, err = repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "aluminum 3.25 per lb", all[1].Text)

	require.NoError(t, repo.DeleteSource(ctx, "guide.md"))
	sources, err = repo.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []knowledge.SourceInfo{{Source: "rates.pdf", Pages: 1, Chunks: 1}}, sources)
}

func TestChunkRepositoryRejectsDuplicateIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepository(openTestDB(t), nil)

	require.NoError(t, repo.ReplaceSource(ctx, "a.md", []knowledge.Chunk{{Source: "a.md", Page: 1, Index: 0, Text: "keep"}}))
	err := repo.ReplaceSource(ctx, "a.md", []knowledge.Chunk{
		{Source: "a.md", Page: 1, Index: 0, Text: "x"},
		{Source: "a.md", Page: 1, Index: 0, Text: "y"},
	})
	require.Error(t, err)

	// the failed replace rolled back
	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].Text)
}

func sampleQuote(id string, created time.Time) *quotes.Quote {
	return &quotes.Quote{
		ID:       id,
		Document: quotes.Document{Filename: "bracket.pdf", Format: constants.PDF, SHA256: "abc123"},
		Signals: signals.Set{
			constants.SignalMaterial: "aluminum",
			constants.SignalQty:      10,
		},
		Inferred: signals.Set{},
		References: []knowledge.Match{
			{Chunk: knowledge.Chunk{Source: "rates.pdf", Page: 2, Index: 0, Text: "aluminum"}, Score: 1.5, Preview: "aluminum"},
		},
		Estimate: &estimate.Estimate{
			Status:  constants.EstimateIncomplete,
			Missing: []constants.Signal{constants.SignalMachiningMinutes, constants.SignalWeightLbs},
			Message: constants.IncompleteMessage,
		},
		Warnings:  []string{"page 1: scanned page read without OCR"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestQuoteRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(openTestDB(t), nil)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	q := sampleQuote("5b0e4f5e-6a55-4d0c-8f5e-0d6c1c3a9a01", t0)
	require.NoError(t, repo.Save(ctx, q))

	got, err := repo.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Document, got.Document)
	assert.Equal(t, q.Signals, got.Signals)
	assert.Equal(t, q.References, got.References)
	assert.Equal(t, q.Estimate, got.Estimate)
	assert.Equal(t, q.Warnings, got.Warnings)
	assert.True(t, got.CreatedAt.Equal(t0))

	// saving again overwrites the row
	q.Signals[constants.SignalMachiningMinutes] = 30.0
	q.Signals[constants.SignalWeightLbs] = 2.0
	q.Estimate = &estimate.Estimate{
		Status:       constants.EstimateComplete,
		CostUSD:      702,
		LeadTimeDays: 3,
		Breakdown:    map[string]float64{estimate.MaterialCost: 57, estimate.MachiningCost: 570, estimate.SetupCost: 75},
	}
	q.Confidence = estimate.ConfidenceHigh
	q.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, q))

	got, err = repo.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.Estimate.Complete())
	assert.Equal(t, 702.0, got.Estimate.CostUSD)
	assert.Equal(t, estimate.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 30.0, got.Signals[constants.SignalMachiningMinutes])
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Minute)))
}

func TestQuoteRepositoryListAndNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(openTestDB(t), nil)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	second := sampleQuote("9f1c7a52-1d2e-4c47-a3a4-1f0f3b2d7c02", t0.Add(time.Hour))
	first := sampleQuote("1a2b3c4d-0000-4000-8000-000000000003", t0)
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, first))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = repo.Get(ctx, "00000000-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOpenSQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "knowledge.db")

	db, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, NewChunkRepository(db, nil).ReplaceSource(ctx, "a.txt", []knowledge.Chunk{
		{Source: "a.txt", Page: 1, Index: 0, Text: "persisted"},
	}))
	require.NoError(t, db.HealthCheck(ctx, time.Second))
	assert.Equal(t, "sqlite3", db.Dialect())
	db.Close()

	// reopening runs the idempotent schema again and keeps the data
	db, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()
	all, err := NewChunkRepository(db, nil).All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "persisted", all[0].Text)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://quotes:***@db:5432/quotes", redact("postgres://quotes:s3cret@db:5432/quotes"))
	assert.Equal(t, "host=db password=*** dbname=quotes", redact("host=db password=s3cret dbname=quotes"))
	assert.Equal(t, "postgres://db/quotes", redact("postgres://db/quotes"))
}
