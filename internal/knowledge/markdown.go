package knowledge

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownPages converts a Markdown document to plain text, one page per
// top-level (# or ##) section. Content before the first heading is page 1.
// Table cells are kept on one line so rate rows stay together.
func MarkdownPages(src []byte) []string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var pages []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			pages = append(pages, s)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering && node.Level <= 2 {
				flush()
			}
			if !entering {
				cur.WriteString("\n")
			}
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(src))
				}
				cur.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *east.TableCell:
			if !entering {
				cur.WriteString(" | ")
			}
		case *east.TableRow, *east.TableHeader:
			if !entering {
				cur.WriteString("\n")
			}
		case *ast.Paragraph, *ast.ListItem, *ast.Blockquote, *ast.ThematicBreak:
			if !entering {
				cur.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	flush()
	return pages
}
