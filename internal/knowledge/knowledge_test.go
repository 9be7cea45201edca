package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

func referenceChunks() []Chunk {
	return []Chunk{
		{Source: "rates.pdf", Page: 1, Index: 0, Text: "Aluminum 6061 material rate is 3.00 USD per lb. Machining multiplier for aluminum is 1.0."},
		{Source: "rates.pdf", Page: 2, Index: 0, Text: "Stainless steel costs 4.50 per lb and machines slower, multiplier 1.25. Lead time adds one day."},
		{Source: "rates.pdf", Page: 3, Index: 0, Text: "Titanium is expensive at 10.00 per lb with a 1.5 multiplier and two extra days of lead time."},
		{Source: "tolerances.md", Page: 1, Index: 0, Text: "Standard tolerance for aluminum parts is +/- 0.005 in. Tight tolerance is +/- 0.001 in."},
		{Source: "tolerances.md", Page: 1, Index: 1, Text: "Aerospace tolerance requires inspection reports and raises machining cost."},
		{Source: "shop.txt", Page: 1, Index: 0, Text: "Shop hours are Monday through Friday. Deliveries leave at noon."},
	}
}

func TestChunker_OverlapAndProgress(t *testing.T) {
	c := NewChunker(10, 3)
	got := c.split("abcdefghijklmnopqrstuvwxyz")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdefghij", got[0])
	assert.Equal(t, "hijklmnopq", got[1])
	assert.True(t, strings.HasSuffix(got[len(got)-1], "z"))

	// overlap >= size still terminates
	c = Chunker{Size: 5, Overlap: 5}
	assert.Len(t, c.split("abcdefghijkl"), 3)
}

func TestChunker_PagesAreOneBasedAndBlankPagesSkipped(t *testing.T) {
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	chunks := c.ChunkPages("guide.pdf", []string{"first   page\n\ntext", "   \n\t ", "third page"})
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Source: "guide.pdf", Page: 1, Index: 0, Text: "first page text"}, chunks[0])
	assert.Equal(t, 3, chunks[1].Page)
	assert.Equal(t, 0, chunks[1].Index)
}

func TestChunker_LongPageIndexesFromZero(t *testing.T) {
	long := strings.Repeat("word ", 700)
	chunks := NewChunker(DefaultChunkSize, DefaultChunkOverlap).ChunkPages("a.txt", []string{long})
	require.Greater(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Text)), DefaultChunkSize)
	}
}

func TestPreview(t *testing.T) {
	short := strings.Repeat("x", PreviewLen)
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("y", PreviewLen+10)
	p := Preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Len(t, []rune(p), PreviewLen+3)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"tolerance", "required", "aluminum", "parts"},
		Tokenize("What tolerance is required for aluminum parts?"))
	assert.Equal(t, []string{"6061", "t6", "0", "005"}, Tokenize("6061-T6 ± 0.005"))
	assert.Empty(t, Tokenize("the of and"))
}

func TestNewIndex_DropsInvalidAndDuplicateChunks(t *testing.T) {
	ix := NewIndex([]Chunk{
		{Source: "", Page: 1, Index: 0, Text: "no source"},
		{Source: "a", Page: 0, Index: 0, Text: "no page"},
		{Source: "a", Page: 1, Index: -1, Text: "bad index"},
		{Source: "a", Page: 1, Index: 0, Text: "   "},
		{Source: "a", Page: 1, Index: 0, Text: "old"},
		{Source: "a", Page: 1, Index: 0, Text: "new"},
	})
	require.Equal(t, 1, ix.Len())
	assert.Equal(t, "new", ix.Chunks()[0].Text)
}

func TestNewIndex_Sources(t *testing.T) {
	ix := NewIndex(referenceChunks())
	assert.Equal(t, []SourceInfo{
		{Source: "rates.pdf", Pages: 3, Chunks: 3},
		{Source: "shop.txt", Pages: 1, Chunks: 1},
		{Source: "tolerances.md", Pages: 1, Chunks: 2},
	}, ix.Sources())
}

func TestSearch_ArgumentErrors(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()), nil)

	_, err := r.Search("   ", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	for _, k := range []int{0, -1} {
		_, err = r.Search("aluminum", k)
		require.Error(t, err)
		assert.ErrorIs(t, err, &common.AppError{Kind: common.KindInvalidArgument, Field: "top_k"})
	}
}

func TestSearch_ToleranceQuestionTopThree(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()), nil)
	res, err := r.Search("What tolerance is required for aluminum parts?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.LessOrEqual(t, len(res.Matches), 3)
	for _, m := range res.Matches {
		assert.NotEmpty(t, m.Source)
		assert.GreaterOrEqual(t, m.Page, 1)
		assert.GreaterOrEqual(t, m.Index, 0)
		assert.NotEmpty(t, m.Preview)
	}
	assert.Equal(t, "tolerances.md", res.Matches[0].Source)
	assert.Equal(t, 0, res.Matches[0].Index)
}

func TestSearch_OrderedByScoreThenIdentity(t *testing.T) {
	chunks := []Chunk{
		{Source: "b", Page: 1, Index: 0, Text: "anodize finish"},
		{Source: "a", Page: 2, Index: 0, Text: "anodize finish"},
		{Source: "a", Page: 1, Index: 1, Text: "anodize finish"},
		{Source: "a", Page: 1, Index: 0, Text: "anodize anodize finish"},
	}
	res, err := NewRetriever(NewIndex(chunks), nil).Search("anodize", 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 4)

	assert.True(t, sort.SliceIsSorted(res.Matches, func(i, j int) bool {
		return res.Matches[i].Score > res.Matches[j].Score
	}))
	var ids []Chunk
	for _, m := range res.Matches[1:] {
		ids = append(ids, Chunk{Source: m.Source, Page: m.Page, Index: m.Index})
	}
	assert.Equal(t, []Chunk{{Source: "a", Page: 1, Index: 1}, {Source: "a", Page: 2, Index: 0}, {Source: "b", Page: 1, Index: 0}}, ids)
}

func TestSearch_TopKClampedToIndexSize(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()), nil)
	res, err := r.Search("lead time per lb multiplier", 1000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Matches), r.Stats().Chunks)
}

func TestSearch_NoMatchIsEmptyNotError(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()), nil)
	res, err := r.Search("quantum entanglement", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)

	empty := NewRetriever(nil, nil)
	res, err = empty.Search("aluminum", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestSignalQuery(t *testing.T) {
	assert.Equal(t, "machining rate cost lead time", SignalQuery(signals.Set{}))
	assert.Equal(t, "titanium rate cost multiplier lead time tight tolerance complex complexity",
		SignalQuery(signals.Set{
			constants.SignalMaterial:   "titanium",
			constants.SignalTolerance:  "tight",
			constants.SignalComplexity: "complex",
		}))
}

func TestSearchBySignals(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()), nil)
	res, err := r.SearchBySignals(signals.Set{constants.SignalMaterial: "titanium"}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, res.Matches)
	assert.Equal(t, 3, res.Matches[0].Page)
}

func TestRetriever_SwapDuringSearches(t *testing.T) {
	r := NewRetriever(NewIndex(referenceChunks()[:2]), nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				res, err := r.Search("rate per lb", 3)
				if assert.NoError(t, err) {
					assert.LessOrEqual(t, len(res.Matches), 3)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		r.Swap(NewIndex(referenceChunks()))
		r.Swap(NewIndex(referenceChunks()[:3]))
	}
	wg.Wait()

	old := r.Swap(NewIndex(referenceChunks()))
	assert.Equal(t, 3, old.Len())
	assert.Equal(t, len(referenceChunks()), r.Stats().Chunks)
}

func TestMarkdownPages(t *testing.T) {
	src := []byte(`Intro line.

# Aluminum

Rate is **3.00** per lb.

| Material | Rate |
|---|---|
| Aluminum | 3.00 |

## Titanium

` + "```" + `
rate: 10.00
` + "```" + `
`)
	pages := MarkdownPages(src)
	require.Len(t, pages, 3)
	assert.Equal(t, "Intro line.", pages[0])
	assert.Contains(t, pages[1], "Rate is 3.00 per lb.")
	assert.Contains(t, pages[1], "Aluminum | 3.00 |")
	assert.Contains(t, pages[2], "Titanium")
	assert.Contains(t, pages[2], "rate: 10.00")
}

type memStore struct {
	mu     sync.Mutex
	chunks map[string][]Chunk
}

func newMemStore() *memStore {
	return &memStore{chunks: map[string][]Chunk{}}
}

func (s *memStore) ReplaceSource(_ context.Context, source string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[source] = append([]Chunk(nil), chunks...)
	return nil
}

func (s *memStore) DeleteSource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, source)
	return nil
}

func (s *memStore) All(context.Context) ([]Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chunk
	for _, cs := range s.chunks {
		out = append(out, cs...)
	}
	return out, nil
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestBuilder_BuildIndexesAndPrunes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "materials", "aluminum.md"), "# Aluminum\n\nAluminum rate is 3.00 per lb.\n")
	writeFile(t, filepath.Join(root, "shop.txt"), "Lead time page one\fLead time page two")
	writeFile(t, filepath.Join(root, ".draft.md"), "# Hidden\n\nnot indexed")
	writeFile(t, filepath.Join(root, "notes.docx"), "binary")

	store := newMemStore()
	var progress []int
	b := NewBuilder(nil, store, nil, WithProgress(func(done, total int) {
		progress = append(progress, done)
	}))

	ix, results, stats, err := b.Build(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, []int{1, 2}, progress)
	require.Len(t, results, 2)
	assert.Equal(t, []SourceInfo{
		{Source: "materials/aluminum.md", Pages: 1, Chunks: 1},
		{Source: "shop.txt", Pages: 2, Chunks: 2},
	}, ix.Sources())

	require.NoError(t, os.Remove(filepath.Join(root, "shop.txt")))
	ix, _, stats, err = b.Build(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 1, ix.Len())
	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBuilder_PatternsAndPDFWithoutReader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "guides", "tol.md"), "tolerance guide")
	writeFile(t, filepath.Join(root, "drafts", "old.md"), "old guide")
	writeFile(t, filepath.Join(root, "guides", "scan.pdf"), "%PDF-1.4")

	b := NewBuilder(nil, newMemStore(), nil, WithPatterns([]string{"guides/**"}, []string{"**/*.pdf"}))
	assert.True(t, b.Matches("guides/tol.md"))
	assert.False(t, b.Matches("drafts/old.md"))
	assert.False(t, b.Matches("guides/scan.pdf"))

	res := NewBuilder(nil, newMemStore(), nil).IndexFile(context.Background(), root, filepath.Join(root, "guides", "scan.pdf"))
	assert.NotEmpty(t, res.Err)
}

func TestWatcher_ReindexesChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "aluminum rate")

	store := newMemStore()
	b := NewBuilder(nil, store, nil)
	ix, _, _, err := b.Build(context.Background(), root)
	require.NoError(t, err)
	r := NewRetriever(ix, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(WatchConfig{Root: root, Debounce: 50 * time.Millisecond}, b, r, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(root, "b.md"), "titanium rate")

	require.Eventually(t, func() bool {
		return len(r.Sources()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "a.md")))
	require.Eventually(t, func() bool {
		srcs := r.Sources()
		return len(srcs) == 1 && srcs[0].Source == "b.md"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
