package observability

import (
	"context"

	"github.com/google/uuid"
)

type correlationIDKey struct{}

// NewCorrelationID generates a fresh per-request correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID attaches a correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID retrieves the correlation id from ctx, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	return id, ok
}
