package reader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	PSMs          []int // page segmentation modes tried in order; longest output wins

	DPI          int // rasterization DPI for scanned pages, default 400
	MaxPages     int // 0 = no limit
	MinPageChars int // pages with fewer letters/digits are OCRed, default 40

	PDFBackend string        // "poppler" (default) | "fitz"
	Timeout    time.Duration // per document, default 90s

	DisableCAD bool // STEP reading fails with CapabilityUnavailable
	RequireOCR bool // a scanned PDF page without OCR fails instead of keeping its text layer
}

// Page is the text of one page and the method that produced it.
type Page struct {
	Number int              `json:"number"`
	Text   string           `json:"text"`
	Source constants.Source `json:"source"`
}

// RawDocument is the immutable result of reading one upload.
type RawDocument struct {
	Filename string
	Format   constants.Format
	SHA256   string
	Text     string
	Pages    []Page
	Metadata map[string]string
	Method   string // "pdf-text" | "pdf-ocr" | "pdf-mixed" | "image-ocr" | "step-p21"
	Warnings []string
	Duration time.Duration
}

// Capabilities reports which optional backends are usable in this process.
type Capabilities struct {
	PDFText   bool `json:"pdf_text"`
	PDFRender bool `json:"pdf_render"`
	OCR       bool `json:"ocr"`
	CAD       bool `json:"cad"`
}

type Reader struct {
	cfg      Config
	runner   Runner
	pdf      pdfBackend
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

type Option func(*Reader)

// WithRunner replaces the external command runner.
func WithRunner(r Runner) Option {
	return func(rd *Reader) {
		if r != nil {
			rd.runner = r
		}
	}
}

// WithLookPath replaces the binary lookup used by Probe.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(rd *Reader) {
		if fn != nil {
			rd.lookPath = fn
		}
	}
}

func NewReader(cfg Config, logger *slog.Logger, opts ...Option) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if len(cfg.PSMs) == 0 {
		cfg.PSMs = []int{11, 6}
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 400
	}
	if cfg.MinPageChars <= 0 {
		cfg.MinPageChars = 40
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	r := &Reader{
		cfg:      cfg,
		runner:   execRunner{logger: logger},
		lookPath: exec.LookPath,
		logger:   logger,
	}
	for _, o := range opts {
		o(r)
	}
	if strings.EqualFold(cfg.PDFBackend, "fitz") {
		r.pdf = fitzBackend{}
	} else {
		r.pdf = popplerBackend{cfg: &r.cfg, runner: r.runner}
	}
	return r
}

// DetectFormat picks a format from the file extension, falling back to
// content sniffing when the extension is missing or unknown.
func DetectFormat(filename string, data []byte) constants.Format {
	if f := constants.MapExtToFormat(filepath.Ext(filename)); f != "" {
		return f
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return constants.PDF
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), []byte("ISO-10303-21")):
		return constants.STEP
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		return constants.IMAGE
	}
	switch http.DetectContentType(head) {
	case "image/png", "image/jpeg", "image/bmp", "image/gif", "image/webp":
		return constants.IMAGE
	case "application/pdf":
		return constants.PDF
	}
	return ""
}

// Read extracts a RawDocument from an upload. The caller's cancellation is not
// propagated into extraction; the configured per-document timeout is.
func (r *Reader) Read(ctx context.Context, filename string, data []byte) (*RawDocument, error) {
	start := time.Now()
	format := DetectFormat(filename, data)
	if format == "" {
		r.logger.Warn("reader.unsupported", "file", filename, "bytes", len(data))
		return nil, common.UnsupportedFormat(filename)
	}
	if len(data) == 0 {
		return nil, common.InvalidArgument("content", "file is empty")
	}
	if format == constants.STEP && r.cfg.DisableCAD {
		return nil, common.CapabilityUnavailable(common.CapabilityCAD, nil)
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	type result struct {
		doc *RawDocument
		err error
	}
	done := make(chan result, 1)
	go func() {
		doc, err := r.read(tctx, filename, format, data)
		done <- result{doc: doc, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(tctx.Err(), context.DeadlineExceeded) {
				r.logger.Error("reader.timeout", "file", filename, "timeout", r.cfg.Timeout)
				return nil, common.ExtractionTimeout(filename, res.err)
			}
			r.logger.Error("reader.failed", "file", filename, "format", format, "error", res.err)
			return nil, res.err
		}
		res.doc.Duration = time.Since(start)
		r.logger.Info("reader.ok",
			"file", filename,
			"format", format,
			"method", res.doc.Method,
			"pages", len(res.doc.Pages),
			"chars", len(res.doc.Text),
			"duration_ms", res.doc.Duration.Milliseconds(),
		)
		return res.doc, nil
	case <-tctx.Done():
		r.logger.Error("reader.timeout", "file", filename, "timeout", r.cfg.Timeout)
		return nil, common.ExtractionTimeout(filename, tctx.Err())
	}
}

func (r *Reader) read(ctx context.Context, filename string, format constants.Format, data []byte) (*RawDocument, error) {
	sum := sha256.Sum256(data)
	doc := &RawDocument{
		Filename: filename,
		Format:   format,
		SHA256:   hex.EncodeToString(sum[:]),
		Metadata: map[string]string{},
	}

	if format == constants.STEP {
		if err := r.readSTEP(ctx, data, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	tmpDir, err := os.MkdirTemp("", "dq-read-*")
	if err != nil {
		return nil, common.Internal("create temp dir", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	ext := constants.NormalizeExt(filepath.Ext(filename))
	if ext == "" {
		ext = string(format)
	}
	path := filepath.Join(tmpDir, "input."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, common.Internal("write temp file", err)
	}

	switch format {
	case constants.PDF:
		err = r.readPDF(ctx, path, tmpDir, doc)
	case constants.IMAGE:
		err = r.readImage(ctx, path, doc)
	default:
		err = common.UnsupportedFormat(filename)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadFile reads a document from disk. Used by the index builder and CLI.
func (r *Reader) ReadFile(ctx context.Context, path string) (*RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r.Read(ctx, filepath.Base(path), data)
}

// Probe reports which backends are installed.
func (r *Reader) Probe() Capabilities {
	has := func(bin string) bool {
		_, err := r.lookPath(bin)
		return err == nil
	}
	caps := Capabilities{
		OCR: has(r.cfg.Tesseract),
		CAD: !r.cfg.DisableCAD,
	}
	if _, ok := r.pdf.(fitzBackend); ok {
		caps.PDFText, caps.PDFRender = true, true
	} else {
		caps.PDFText = has(r.cfg.Pdftotext)
		caps.PDFRender = has(r.cfg.Pdftoppm)
	}
	return caps
}

func joinPages(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
