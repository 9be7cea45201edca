// Package knowledge holds the reference-document index: page-bounded chunks,
// BM25 ranking over an immutable snapshot, and the builder and watcher that
// keep the snapshot current.
package knowledge

import (
	"strings"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 150
	PreviewLen          = 250
)

// Chunk is one indexed piece of a reference page. (Source, Page, Index) is its
// identity: Page is 1-based, Index is 0-based within the page.
type Chunk struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Index  int    `json:"chunk_index"`
	Text   string `json:"text"`
}

func (c Chunk) valid() bool {
	return c.Source != "" && c.Page >= 1 && c.Index >= 0 && strings.TrimSpace(c.Text) != ""
}

// less orders chunks by identity.
func (c Chunk) less(o Chunk) bool {
	if c.Source != o.Source {
		return c.Source < o.Source
	}
	if c.Page != o.Page {
		return c.Page < o.Page
	}
	return c.Index < o.Index
}

type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = 0
		}
	}
	return Chunker{Size: size, Overlap: overlap}
}

// ChunkPages splits each page (pages[0] is page 1) into overlapping windows.
// Whitespace is collapsed first and blank pages produce nothing.
func (c Chunker) ChunkPages(source string, pages []string) []Chunk {
	var out []Chunk
	for i, text := range pages {
		for idx, piece := range c.split(normalizeSpace(text)) {
			out = append(out, Chunk{Source: source, Page: i + 1, Index: idx, Text: piece})
		}
	}
	return out
}

func (c Chunker) split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	var out []string
	for start := 0; start < n; {
		end := start + c.Size
		if end > n {
			end = n
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == n {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Preview returns the first PreviewLen characters of text, with "..."
// appended when it was cut.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLen {
		return text
	}
	return string(r[:PreviewLen]) + "..."
}
