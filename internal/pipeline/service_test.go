package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
)

const drawingText = "Material: Aluminum, Qty: 10\n\f"

var fakePDF = []byte("%PDF-1.4\n% fake drawing\n")

// fakeRunner answers pdftotext with a fixed text layer; every other tool is missing.
type fakeRunner struct {
	mu    sync.Mutex
	text  string
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if name == "pdftotext" {
		return []byte(f.text), nil, nil
	}
	return nil, nil, exec.ErrNotFound
}

func referenceIndex() *knowledge.Index {
	return knowledge.NewIndex([]knowledge.Chunk{
		{Source: "tolerances.pdf", Page: 1, Index: 0, Text: "Aluminum parts require a tolerance of +/- 0.005 in unless noted."},
		{Source: "tolerances.pdf", Page: 2, Index: 0, Text: "Tight tolerance work on aluminum adds inspection time."},
		{Source: "rates.md", Page: 1, Index: 0, Text: "Aluminum rate cost is 3.00 per lb. Lead time is three days."},
		{Source: "rates.md", Page: 2, Index: 0, Text: "Titanium machining rate multiplier is 1.5."},
		{Source: "finishing.txt", Page: 1, Index: 0, Text: "Anodizing adds two days of lead time."},
	})
}

func newTestService(t *testing.T, text string) *Service {
	t.Helper()
	rd := reader.NewReader(reader.Config{MinPageChars: 1}, nil, reader.WithRunner(&fakeRunner{text: text}))
	return NewService(rd, nil, knowledge.NewRetriever(referenceIndex(), nil), nil, nil, nil, WithReferencesTopK(3))
}

func TestIngestAndQuote_CompleteWithOverrides(t *testing.T) {
	svc := newTestService(t, drawingText)

	q, err := svc.IngestAndQuote(context.Background(), IngestRequest{
		Filename: "bracket.pdf",
		Content:  fakePDF,
		Overrides: map[string]string{
			"machining_minutes":   "45",
			"material_weight_lbs": "2.5",
		},
	})
	require.NoError(t, err)

	require.True(t, q.Estimate.Complete())
	assert.GreaterOrEqual(t, q.Estimate.CostUSD, 0.0)
	assert.Equal(t, "aluminum", q.Signals[constants.SignalMaterial])
	assert.Equal(t, 10, q.Signals[constants.SignalQty])
	assert.Equal(t, constants.PDF, q.Document.Format)
	assert.NotEmpty(t, q.Document.SHA256)
	assert.NotEmpty(t, q.ID)
	assert.LessOrEqual(t, len(q.References), 3)
	assert.NotEmpty(t, q.References)
}

func TestIngestAndQuote_IncompleteThenCompleted(t *testing.T) {
	svc := newTestService(t, drawingText)
	ctx := context.Background()

	q, err := svc.IngestAndQuote(ctx, IngestRequest{Filename: "bracket.pdf", Content: fakePDF})
	require.NoError(t, err)
	require.False(t, q.Estimate.Complete())
	assert.Equal(t, []constants.Signal{constants.SignalMachiningMinutes, constants.SignalWeightLbs}, q.Estimate.Missing)

	done, err := svc.CompleteQuote(ctx, q.ID, map[string]string{
		"machining_minutes":   "45",
		"material_weight_lbs": "2.5",
	})
	require.NoError(t, err)
	require.True(t, done.Estimate.Complete())
	assert.Equal(t, q.ID, done.ID)
	assert.Equal(t, "aluminum", done.Signals[constants.SignalMaterial])
	assert.Equal(t, 10, done.Signals[constants.SignalQty])

	got, err := svc.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Estimate.CostUSD, got.Estimate.CostUSD)
}

func TestIngestAndQuote_OverridesBeatExtraction(t *testing.T) {
	svc := newTestService(t, drawingText)

	q, err := svc.IngestAndQuote(context.Background(), IngestRequest{
		Filename:  "bracket.pdf",
		Content:   fakePDF,
		Material:  "titanium",
		Qty:       "5",
		Overrides: map[string]string{"material": "steel"},
	})
	require.NoError(t, err)
	assert.Equal(t, "steel", q.Signals[constants.SignalMaterial])
	assert.Equal(t, 5, q.Signals[constants.SignalQty])
}

func TestIngestAndQuote_Errors(t *testing.T) {
	svc := newTestService(t, drawingText)
	ctx := context.Background()

	cases := []struct {
		name string
		req  IngestRequest
		want error
	}{
		{"missing filename", IngestRequest{Content: fakePDF}, common.ErrInvalidArgument},
		{"empty content", IngestRequest{Filename: "a.pdf"}, common.ErrInvalidArgument},
		{"unsupported format", IngestRequest{Filename: "notes.docx", Content: []byte("hello")}, common.ErrUnsupportedFormat},
		{"bad qty", IngestRequest{Filename: "a.pdf", Content: fakePDF, Qty: "-3"}, common.ErrInvalidOverride},
		{"unknown override", IngestRequest{Filename: "a.pdf", Content: fakePDF, Overrides: map[string]string{"color": "red"}}, common.ErrInvalidOverride},
		{
			"unknown material",
			IngestRequest{Filename: "a.pdf", Content: fakePDF, Material: "unobtainium", Overrides: map[string]string{"machining_minutes": "10", "material_weight_lbs": "1"}},
			common.ErrUnknownMaterial,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := svc.IngestAndQuote(ctx, tc.req)
			assert.Nil(t, q)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, svc.Health(ctx).Quotes)
}

func TestCompleteQuote_Errors(t *testing.T) {
	svc := newTestService(t, drawingText)
	ctx := context.Background()

	_, err := svc.CompleteQuote(ctx, "6f1c1d9e-8d5e-4d61-9a43-0e4f2b0c0f00", map[string]string{"qty": "3"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	q, err := svc.IngestAndQuote(ctx, IngestRequest{Filename: "bracket.pdf", Content: fakePDF})
	require.NoError(t, err)

	_, err = svc.CompleteQuote(ctx, q.ID, map[string]string{"material_weight_lbs": "heavy"})
	assert.ErrorIs(t, err, common.ErrInvalidOverride)

	got, err := svc.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Signals, got.Signals)
}

func TestAsk(t *testing.T) {
	svc := newTestService(t, drawingText)
	ctx := context.Background()

	res, err := svc.Ask(ctx, "What tolerance is required for aluminum parts?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.LessOrEqual(t, len(res.Matches), 3)
	for _, m := range res.Matches {
		assert.NotEmpty(t, m.Source)
		assert.Positive(t, m.Page)
		assert.GreaterOrEqual(t, m.Index, 0)
	}
	assert.Equal(t, "tolerances.pdf", res.Matches[0].Source)

	_, err = svc.Ask(ctx, "", 5)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	_, err = svc.Ask(ctx, "aluminum", 0)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestHealthAndSources(t *testing.T) {
	svc := newTestService(t, drawingText)
	h := svc.Health(context.Background())
	assert.Equal(t, 5, h.Index.Chunks)
	assert.Equal(t, 3, h.Index.Sources)
	assert.Equal(t, "default-1", h.TablesVersion)
	assert.True(t, h.Capabilities.CAD)

	names := map[string]int{}
	for _, s := range svc.Sources() {
		names[s.Source] = s.Chunks
	}
	assert.Equal(t, map[string]int{"tolerances.pdf": 2, "rates.md": 2, "finishing.txt": 1}, names)
}

func TestIngestDirectory(t *testing.T) {
	svc := newTestService(t, drawingText)
	root := t.TempDir()
	write := func(rel string, data []byte) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o600))
	}
	write("a.pdf", fakePDF)
	write("sub/b.pdf", fakePDF)
	write("notes.docx", []byte("skip me"))
	write(".hidden/c.pdf", fakePDF)
	write("broken.step", []byte("not a step file"))

	var progress []int
	var mu sync.Mutex
	items, stats, err := svc.IngestDirectory(context.Background(), root, BatchOptions{
		Workers:    2,
		SkipHidden: true,
		Overrides:  map[string]string{"machining_minutes": "30", "material_weight_lbs": "2"},
		Progress: func(done, total int) {
			mu.Lock()
			progress = append(progress, done)
			mu.Unlock()
			assert.Equal(t, 3, total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Scanned)
	assert.Equal(t, 3, stats.Matched)
	assert.Equal(t, 2, stats.Complete)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, items, 3)
	assert.Equal(t, filepath.Join(root, "a.pdf"), items[0].Path)
	assert.Equal(t, filepath.Join(root, "broken.step"), items[1].Path)
	assert.NotEmpty(t, items[1].Err)
	assert.Nil(t, items[1].Quote)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)

	list, err := svc.ListQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	xlsx, err := svc.ExportQuotes(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, xlsx)
}

func TestIngestDirectory_MissingRoot(t *testing.T) {
	svc := newTestService(t, drawingText)
	_, _, err := svc.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), BatchOptions{})
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, _, err = svc.IngestDirectory(context.Background(), " ", BatchOptions{})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

var _ DocumentReader = (*reader.Reader)(nil)
