package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

func (r *Reader) readImage(ctx context.Context, path string, doc *RawDocument) error {
	txt, warns, err := r.ocrImage(ctx, path)
	if err != nil {
		return err
	}
	doc.Warnings = append(doc.Warnings, warns...)
	doc.Method = "image-ocr"
	if txt == "" {
		doc.Warnings = append(doc.Warnings, "ocr produced no text")
		return nil
	}
	doc.Pages = []Page{{Number: 1, Text: txt, Source: constants.SourceOCR}}
	doc.Text = txt
	return nil
}

// ocrImage runs tesseract once per configured page segmentation mode and
// keeps the longest normalized output. Drawings mix sparse callouts with
// dense title blocks, so no single mode wins everywhere.
func (r *Reader) ocrImage(ctx context.Context, path string) (string, []string, error) {
	var (
		best    string
		warns   []string
		lastErr error
		ok      int
	)
	for _, psm := range r.cfg.PSMs {
		args := []string{path, "stdout", "-l", r.cfg.TesseractLang, "--psm", strconv.Itoa(psm)}
		if r.cfg.TessdataDir != "" {
			args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
		}

		// tesseract <file> stdout -l <lang> --psm <n>
		out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
		if err != nil {
			if missingBinary(err) {
				return "", nil, common.CapabilityUnavailable(common.CapabilityOCR, err)
			}
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			lastErr = fmt.Errorf("tesseract psm %d: %w", psm, err)
			if msg := strings.TrimSpace(string(errb)); msg != "" {
				warns = append(warns, truncate(msg, 512))
			}
			continue
		}
		ok++
		if txt := Normalize(string(out)); len(txt) > len(best) {
			best = txt
		}
	}
	if ok == 0 && lastErr != nil {
		return "", warns, lastErr
	}
	return best, warns, nil
}
