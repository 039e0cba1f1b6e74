package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type requestFieldsKey struct{}

// RequestFields are the identifiers every webhook log line must carry,
// per spec.md §4.9 ("Every log line includes the correlation id,
// organization id, conversation id").
type RequestFields struct {
	CorrelationID  string
	OrganizationID string
	ConversationID string
}

// WithRequestFields attaches request-scoped identifiers to ctx for later
// retrieval by LoggerWithTrace.
func WithRequestFields(ctx context.Context, f RequestFields) context.Context {
	return context.WithValue(ctx, requestFieldsKey{}, f)
}

func requestFieldsFromContext(ctx context.Context) (RequestFields, bool) {
	f, ok := ctx.Value(requestFieldsKey{}).(RequestFields)
	return f, ok
}

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id
// from the context (if a span is active) and the request's correlation,
// organization, and conversation identifiers (if present).
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
		if sc.HasSpanID() {
			l = l.With().Str("span_id", sc.SpanID().String()).Logger()
		}
		if sc.IsSampled() {
			l = l.With().Bool("trace_sampled", true).Logger()
		}
	}
	if f, ok := requestFieldsFromContext(ctx); ok {
		ctxl := l.With()
		if f.CorrelationID != "" {
			ctxl = ctxl.Str("correlation_id", f.CorrelationID)
		}
		if f.OrganizationID != "" {
			ctxl = ctxl.Str("organization_id", f.OrganizationID)
		}
		if f.ConversationID != "" {
			ctxl = ctxl.Str("conversation_id", f.ConversationID)
		}
		l = ctxl.Logger()
	}
	return &l
}
