package logging

import (
	"context"
	"log/slog"
)

// Attribute keys added by EnrichHandler.
const (
	CorrelationIDKey = "correlation_id"
	RoutineKey       = "routine"
	ContextInfoKey   = "context"
)

// ContextInfoProvider resolves the request context of a ctx.
// reqctx.Provider satisfies it.
type ContextInfoProvider interface {
	CorrelationID(ctx context.Context) string
	Routine(ctx context.Context) string
	ContextInfo(ctx context.Context) any
}

// EnrichHandler adds the correlation ID, routine name and context metadata of
// the record's ctx to every record. Records logged without a ctx, or through
// a handler with no provider, pass through unchanged.
type EnrichHandler struct {
	inner    slog.Handler
	provider ContextInfoProvider
}

// NewEnrichHandler wraps inner.
func NewEnrichHandler(inner slog.Handler, provider ContextInfoProvider) *EnrichHandler {
	return &EnrichHandler{inner: inner, provider: provider}
}

// Enrich returns a logger whose handler enriches records from provider.
func Enrich(logger *slog.Logger, provider ContextInfoProvider) *slog.Logger {
	return slog.New(NewEnrichHandler(logger.Handler(), provider))
}

// Enabled reports whether the wrapped handler handles records at level.
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the request context attributes and forwards the record.
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error { //nolint:gocritic // slog.Handler interface requires value
	if h.provider == nil || ctx == nil {
		return h.inner.Handle(ctx, r)
	}

	r = r.Clone()
	r.AddAttrs(
		slog.String(CorrelationIDKey, h.provider.CorrelationID(ctx)),
		slog.String(RoutineKey, h.provider.Routine(ctx)),
	)

	if info := h.provider.ContextInfo(ctx); info != nil {
		r.AddAttrs(slog.Any(ContextInfoKey, info))
	}

	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new EnrichHandler with attrs added to the wrapped handler.
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

// WithGroup returns a new EnrichHandler. Enrichment attributes of later
// records land inside the group.
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
