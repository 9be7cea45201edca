package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/pipeline"
)

// QuoteService adapts the pipeline to QuoteService. Errors leave here as
// gRPC statuses carrying the error kind and field.
type QuoteService struct {
	svc         *pipeline.Service
	defaultTopK int
	logger      *slog.Logger
}

func NewQuoteService(svc *pipeline.Service, defaultTopK int, logger *slog.Logger) *QuoteService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &QuoteService{svc: svc, defaultTopK: defaultTopK, logger: logger}
}

var _ QuoteServiceServer = (*QuoteService)(nil)

// IngestAndQuote expects filename, content_base64 and optionally material,
// qty and an overrides object.
func (s *QuoteService) IngestAndQuote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	content, err := base64.StdEncoding.DecodeString(str(in, "content_base64"))
	if err != nil {
		return nil, common.ToStatus(common.InvalidArgument("content_base64", "must be base64"))
	}
	overrides, err := stringMap(in, "overrides")
	if err != nil {
		return nil, common.ToStatus(err)
	}
	q, err := s.svc.IngestAndQuote(ctx, pipeline.IngestRequest{
		Filename:  str(in, "filename"),
		Content:   content,
		Material:  str(in, "material"),
		Qty:       str(in, "qty"),
		Overrides: overrides,
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(q)
}

// CompleteQuote expects quote_id and an answers object.
func (s *QuoteService) CompleteQuote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(str(in, "quote_id"))
	if id == "" {
		return nil, common.ToStatus(common.InvalidArgument("quote_id", "is required"))
	}
	answers, err := stringMap(in, "answers")
	if err != nil {
		return nil, common.ToStatus(err)
	}
	q, err := s.svc.CompleteQuote(ctx, id, answers)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(q)
}

func (s *QuoteService) GetQuote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(str(in, "quote_id"))
	if id == "" {
		return nil, common.ToStatus(common.InvalidArgument("quote_id", "is required"))
	}
	q, err := s.svc.GetQuote(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(q)
}

// Ask expects question and an optional top_k (server default when absent).
func (s *QuoteService) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	topK := s.defaultTopK
	if v, ok := in.GetFields()["top_k"]; ok {
		n, err := intValue(v)
		if err != nil {
			return nil, common.ToStatus(common.InvalidArgument("top_k", err.Error()))
		}
		topK = n
	}
	res, err := s.svc.Ask(ctx, str(in, "question"), topK)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

func (s *QuoteService) ListSources(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"sources": s.svc.Sources()})
}

func (s *QuoteService) Health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(s.svc.Health(ctx))
}

func (s *QuoteService) ExportQuotes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	data, err := s.svc.ExportQuotes(ctx)
	if err != nil {
		s.logger.Error("export quotes failed", "error", err)
		return nil, common.ToStatus(common.Internal("export quotes", err))
	}
	return structpb.NewStruct(map[string]any{
		"filename":    "quotes-" + time.Now().UTC().Format("20060102-150405") + ".xlsx",
		"xlsx_base64": base64.StdEncoding.EncodeToString(data),
	})
}

func str(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	}
	return ""
}

// stringMap flattens an object of scalars into strings, the form overrides
// and answers are validated in. Nested objects and lists are rejected.
func stringMap(in *structpb.Struct, key string) (map[string]string, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	obj := v.GetStructValue()
	if obj == nil {
		return nil, common.InvalidOverride(key, "must be an object of scalar values")
	}
	out := make(map[string]string, len(obj.GetFields()))
	for k, fv := range obj.GetFields() {
		switch fv.GetKind().(type) {
		case *structpb.Value_StructValue, *structpb.Value_ListValue:
			return nil, common.InvalidOverride(k, "must be a string, number or bool")
		}
		out[k] = str(obj, k)
	}
	return out, nil
}

func intValue(v *structpb.Value) (int, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != float64(int(k.NumberValue)) {
			return 0, strconv.ErrSyntax
		}
		return int(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return strconv.Atoi(strings.TrimSpace(k.StringValue))
	}
	return 0, strconv.ErrSyntax
}

// toStruct converts any JSON-marshalable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.ToStatus(common.Internal("encode response", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.ToStatus(common.Internal("encode response", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.ToStatus(common.Internal("encode response", err))
	}
	return out, nil
}
