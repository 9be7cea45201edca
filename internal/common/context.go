package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyQuoteID   contextKey = "quote_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithQuoteID adds a quote ID to the context
func WithQuoteID(ctx context.Context, quoteID string) context.Context {
	return context.WithValue(ctx, ContextKeyQuoteID, quoteID)
}

// QuoteIDFromContext extracts the quote ID from context
func QuoteIDFromContext(ctx context.Context) string {
	if quoteID, ok := ctx.Value(ContextKeyQuoteID).(string); ok {
		return quoteID
	}
	return ""
}

// LoggerFrom returns base enriched with the request and quote ids found in ctx.
func LoggerFrom(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		base = base.With("request_id", id)
	}
	if id := QuoteIDFromContext(ctx); id != "" {
		base = base.With("quote_id", id)
	}
	return base
}
