package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

// pdfBackend yields the text layer per page and rasterizes single pages for OCR.
type pdfBackend interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
	RenderPage(ctx context.Context, path string, page, dpi int, outDir string) (string, error)
}

// popplerBackend shells out to pdftotext / pdftoppm.
type popplerBackend struct {
	cfg    *Config
	runner Runner
}

func (p popplerBackend) PageTexts(ctx context.Context, path string) ([]string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if missingBinary(err) {
			return nil, common.CapabilityUnavailable(common.CapabilityPDF, err)
		}
		return nil, fmt.Errorf("pdftotext: %w (%s)", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	// form feed separates pages and also terminates the last one
	pages := strings.Split(string(out), "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

func (p popplerBackend) RenderPage(ctx context.Context, path string, page, dpi int, outDir string) (string, error) {
	prefix := filepath.Join(outDir, fmt.Sprintf("page%d", page))
	n := strconv.Itoa(page)
	// pdftoppm -r <dpi> -f <n> -l <n> -png <in.pdf> <prefix>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", strconv.Itoa(dpi), "-f", n, "-l", n, "-png", path, prefix)
	if err != nil {
		if missingBinary(err) {
			return "", common.CapabilityUnavailable(common.CapabilityOCR, err)
		}
		return "", fmt.Errorf("pdftoppm page %d: %w (%s)", page, err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	// pdftoppm zero-pads the page suffix depending on page count
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm rendered no image for page %d", page)
	}
	return matches[0], nil
}

// fitzBackend uses MuPDF in-process.
type fitzBackend struct{}

func (fitzBackend) PageTexts(ctx context.Context, path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txt, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d text: %w", i+1, err)
		}
		pages = append(pages, txt)
	}
	return pages, nil
}

func (fitzBackend) RenderPage(ctx context.Context, path string, page, dpi int, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	png, err := doc.ImagePNG(page-1, float64(dpi))
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page, err)
	}
	out := filepath.Join(outDir, fmt.Sprintf("page%d.png", page))
	if err := os.WriteFile(out, png, 0o600); err != nil {
		return "", err
	}
	return out, nil
}

// readPDF takes each page's text layer when it is dense enough and OCRs the
// page otherwise.
func (r *Reader) readPDF(ctx context.Context, path, tmpDir string, doc *RawDocument) error {
	texts, err := r.pdf.PageTexts(ctx, path)
	if err != nil {
		var ae *common.AppError
		if errors.As(err, &ae) || ctx.Err() != nil {
			return err
		}
		return common.NewAppError(common.KindUnsupportedFormat, "content", "unreadable pdf", err)
	}
	if r.cfg.MaxPages > 0 && len(texts) > r.cfg.MaxPages {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("only the first %d of %d pages were read", r.cfg.MaxPages, len(texts)))
		texts = texts[:r.cfg.MaxPages]
	}

	var textPages, ocrPages int
	for i, raw := range texts {
		num := i + 1
		txt := Normalize(raw)
		if textDensity(txt) >= r.cfg.MinPageChars {
			doc.Pages = append(doc.Pages, Page{Number: num, Text: txt, Source: constants.SourceText})
			textPages++
			continue
		}

		r.logger.Debug("reader.pdf.page_ocr", "page", num, "text_chars", textDensity(txt))
		ocrTxt, warns, err := r.ocrPDFPage(ctx, path, num, tmpDir)
		doc.Warnings = append(doc.Warnings, warns...)
		switch {
		case err == nil && textDensity(ocrTxt) > textDensity(txt):
			doc.Pages = append(doc.Pages, Page{Number: num, Text: ocrTxt, Source: constants.SourceOCR})
			ocrPages++
			continue
		case err == nil:
		case errors.Is(err, common.ErrCapabilityUnavailable):
			if r.cfg.RequireOCR {
				return err
			}
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: scanned page read without OCR: %v", num, err))
		default:
			if ctx.Err() != nil {
				return err
			}
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: ocr failed: %v", num, err))
		}

		if txt != "" {
			doc.Pages = append(doc.Pages, Page{Number: num, Text: txt, Source: constants.SourceText})
			textPages++
		} else {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: no text found", num))
		}
	}

	switch {
	case ocrPages == 0:
		doc.Method = "pdf-text"
	case textPages == 0:
		doc.Method = "pdf-ocr"
	default:
		doc.Method = "pdf-mixed"
	}
	doc.Metadata["pages"] = strconv.Itoa(len(texts))
	doc.Text = joinPages(doc.Pages)
	return nil
}

func (r *Reader) ocrPDFPage(ctx context.Context, path string, page int, tmpDir string) (string, []string, error) {
	img, err := r.pdf.RenderPage(ctx, path, page, r.cfg.DPI, tmpDir)
	if err != nil {
		return "", nil, err
	}
	defer os.Remove(img)
	return r.ocrImage(ctx, img)
}
