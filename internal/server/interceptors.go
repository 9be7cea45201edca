package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

// RequestIDHeader is read from incoming metadata and echoed back.
const RequestIDHeader = "x-request-id"

// UnaryInterceptor tags every call with a request id, logs its outcome and
// converts stray errors into statuses.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		resp, err := handler(ctx, req)
		log := common.LoggerFrom(ctx, logger)
		if err != nil {
			err = common.ToStatus(err)
			log.Warn("rpc.failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil, err
		}
		log.Info("rpc.ok", "method", info.FullMethod, "duration_ms", time.Since(start).Milliseconds())
		return resp, nil
	}
}
