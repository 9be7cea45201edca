package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", CapabilityUnavailable(CapabilityOCR, errors.New("tesseract missing")))

	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.ErrorIs(t, err, ErrOCRUnavailable)
	assert.NotErrorIs(t, err, ErrCADUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindCapabilityUnavailable, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "[ocr]")
	assert.Contains(t, err.Error(), "tesseract missing")
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   codes.Code
		reason string
		field  string
	}{
		{"invalid override", InvalidOverride("qty", "must be a positive integer"), codes.InvalidArgument, "INVALID_OVERRIDE", "qty"},
		{"unsupported", UnsupportedFormat("part.docx"), codes.InvalidArgument, "UNSUPPORTED_FORMAT", "filename"},
		{"unknown material", UnknownMaterial("unobtainium"), codes.FailedPrecondition, "UNKNOWN_MATERIAL", "material"},
		{"capability", CapabilityUnavailable(CapabilityCAD, nil), codes.Unimplemented, "CAPABILITY_UNAVAILABLE", "cad"},
		{"timeout", ExtractionTimeout("a.pdf", context.DeadlineExceeded), codes.DeadlineExceeded, "EXTRACTION_TIMEOUT", "filename"},
		{"not found", NotFound("quote_id", "abc"), codes.NotFound, "NOT_FOUND", "quote_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(ToStatus(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())

			require.Len(t, st.Details(), 1)
			info, ok := st.Details()[0].(*errdetails.ErrorInfo)
			require.True(t, ok)
			assert.Equal(t, tt.reason, info.GetReason())
			assert.Equal(t, "drawing-quotes", info.GetDomain())
			assert.Equal(t, tt.field, info.GetMetadata()["field"])
		})
	}
}

func TestToStatusPassThrough(t *testing.T) {
	assert.NoError(t, ToStatus(nil))

	orig := status.Error(codes.Aborted, "busy")
	assert.Equal(t, orig, ToStatus(orig))

	st, _ := status.FromError(ToStatus(errors.New("boom")))
	assert.Equal(t, codes.Internal, st.Code())

	st, _ = status.FromError(ToStatus(fmt.Errorf("read: %w", context.Canceled)))
	assert.Equal(t, codes.Canceled, st.Code())
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("filename", "  ", Required).
		Field("qty", 0, PositiveInt).
		Field("top_k", 120, PositiveInt, MaxInt(50)).
		Field("weight", 2.5, PositiveFloat, MaxFloat(10)).
		Field("quote_id", "not-a-uuid", Required, UUID).
		Field("format", "step", OneOf("pdf", "STEP"))

	require.True(t, v.HasErrors())
	fields := make([]string, 0, len(v.Errors()))
	for _, e := range v.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"filename", "qty", "top_k", "quote_id"}, fields)

	err := v.AsError(KindInvalidArgument)
	var ae *AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindInvalidArgument, ae.Kind)
	assert.Equal(t, "filename", ae.Field)
	assert.Contains(t, ae.Message, "must be a valid UUID")

	assert.NoError(t, NewValidator().Field("qty", 3, PositiveInt).AsError(KindInvalidArgument))
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("GRPC_ADDR", ":9090")
	t.Setenv("READER_PDF_BACKEND", "fitz")
	t.Setenv("READER_TIMEOUT", "30s")
	t.Setenv("READER_CAD_ENABLED", "false")
	t.Setenv("KNOWLEDGE_TOP_K", "7")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, "fitz", cfg.Reader.PDFBackend)
	assert.False(t, cfg.Reader.CADEnabled)
	assert.Equal(t, 7, cfg.Knowledge.DefaultTopK)
	assert.Equal(t, 30*time.Second, cfg.Reader.Timeout)

	cfg.Reader.PDFBackend = "ghostscript"
	assert.ErrorIs(t, cfg.Validate(), &AppError{Kind: KindInvalidArgument, Field: "READER_PDF_BACKEND"})

	cfg.Reader.PDFBackend = "poppler"
	cfg.Quotes.ReferencesTopK = 0
	assert.ErrorIs(t, cfg.Validate(), &AppError{Kind: KindInvalidArgument, Field: "QUOTE_REFERENCES_TOP_K"})
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)

	ctx := WithQuoteID(WithRequestID(context.Background(), "req-1"), "q-1")
	LoggerFrom(ctx, base).Debug("quotes.test")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"quote_id":"q-1"`)
	assert.Contains(t, out, `"msg":"quotes.test"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
