package knowledge

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an and are as at be but by can do does for from has have how
		i if in into is it its me my no not of on or our should so than that the their them
		then there these they this to too was we were what when where which who why will with
		would you your`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Tokenize lower-cases s and splits it into alphanumeric terms, dropping
// stopwords and single letters.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		if len([]rune(f)) == 1 && !unicode.IsDigit([]rune(f)[0]) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SourceInfo summarises one indexed reference document.
type SourceInfo struct {
	Source string `json:"source"`
	Pages  int    `json:"pages"`
	Chunks int    `json:"chunks"`
}

type posting struct {
	doc int
	tf  int
}

// Index is an immutable BM25 snapshot over a set of chunks. It is safe for
// concurrent reads and is never modified after NewIndex returns.
type Index struct {
	chunks   []Chunk
	docLen   []int
	avgLen   float64
	postings map[string][]posting
	sources  []SourceInfo
	builtAt  time.Time
}

// NewIndex builds a snapshot. Chunks missing any part of their identity or
// with blank text are dropped; duplicate identities keep the last one given.
func NewIndex(chunks []Chunk) *Index {
	byID := make(map[Chunk]int, len(chunks))
	var kept []Chunk
	for _, c := range chunks {
		if !c.valid() {
			continue
		}
		key := Chunk{Source: c.Source, Page: c.Page, Index: c.Index}
		if i, dup := byID[key]; dup {
			kept[i] = c
			continue
		}
		byID[key] = len(kept)
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].less(kept[j]) })

	ix := &Index{
		chunks:   kept,
		docLen:   make([]int, len(kept)),
		postings: map[string][]posting{},
		builtAt:  time.Now().UTC(),
	}
	total := 0
	for doc, c := range kept {
		tf := map[string]int{}
		terms := Tokenize(c.Text)
		for _, t := range terms {
			tf[t]++
		}
		for t, n := range tf {
			ix.postings[t] = append(ix.postings[t], posting{doc: doc, tf: n})
		}
		ix.docLen[doc] = len(terms)
		total += len(terms)
	}
	if len(kept) > 0 {
		ix.avgLen = float64(total) / float64(len(kept))
	}
	ix.sources = summarise(kept)
	return ix
}

func summarise(chunks []Chunk) []SourceInfo {
	var out []SourceInfo
	pages := map[int]struct{}{}
	for _, c := range chunks {
		if len(out) == 0 || out[len(out)-1].Source != c.Source {
			out = append(out, SourceInfo{Source: c.Source})
			pages = map[int]struct{}{}
		}
		cur := &out[len(out)-1]
		cur.Chunks++
		if _, seen := pages[c.Page]; !seen {
			pages[c.Page] = struct{}{}
			cur.Pages++
		}
	}
	return out
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

// Chunks returns a copy of the indexed chunks in identity order.
func (ix *Index) Chunks() []Chunk {
	if ix == nil {
		return nil
	}
	out := make([]Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

func (ix *Index) Sources() []SourceInfo {
	if ix == nil {
		return nil
	}
	out := make([]SourceInfo, len(ix.sources))
	copy(out, ix.sources)
	return out
}

func (ix *Index) BuiltAt() time.Time {
	if ix == nil {
		return time.Time{}
	}
	return ix.builtAt
}

// Match is a ranked chunk.
type Match struct {
	Chunk
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// rank scores every chunk containing a query term and returns at most topK
// matches scoring above floor, best first, ties in identity order.
func (ix *Index) rank(terms []string, topK int, floor float64) []Match {
	if ix.Len() == 0 || len(terms) == 0 {
		return nil
	}
	n := float64(len(ix.chunks))
	scores := map[int]float64{}
	seen := map[string]struct{}{}
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		plist := ix.postings[t]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(ix.docLen[p.doc])/ix.avgLen
			scores[p.doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	docs := make([]int, 0, len(scores))
	for doc, s := range scores {
		if s > floor {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		// chunks are stored in identity order
		return docs[i] < docs[j]
	})
	if topK < len(docs) {
		docs = docs[:topK]
	}

	out := make([]Match, len(docs))
	for i, doc := range docs {
		c := ix.chunks[doc]
		out[i] = Match{Chunk: c, Score: scores[doc], Preview: Preview(c.Text)}
	}
	return out
}
