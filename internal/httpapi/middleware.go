package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/signature"
)

// maxBodyBytes bounds the raw webhook payload read into memory, mapping an
// oversized body to apperr.PayloadTooLarge rather than an unbounded read.
const maxBodyBytes = 10 << 20 // 10 MiB

// withCorrelation stamps every request with a fresh correlation id before
// any other middleware runs, per spec.md §4.9's "fresh correlation ID per
// request" requirement.
func withCorrelation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := observability.NewCorrelationID()
		ctx := observability.WithCorrelationID(r.Context(), id)
		ctx = observability.WithRequestFields(ctx, observability.RequestFields{CorrelationID: id})
		next(w, r.WithContext(ctx))
	}
}

// withSignature verifies the webhook-signature header against the raw
// request body before the handler ever sees it, per the Signature
// Verifier (C1). The body is restored onto the request afterward so the
// handler can still decode it as JSON.
func withSignature(secret []byte, skew time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := observability.CorrelationID(r.Context())

		limited := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(limited)
		if err != nil {
			writeError(w, requestID, apperr.Wrap(apperr.PayloadTooLarge, "request body exceeds size limit", err))
			return
		}

		if err := signature.Verify(body, r.Header.Get("webhook-signature"), secret, time.Now(), skew); err != nil {
			observability.LoggerWithTrace(r.Context()).Warn().Err(err).Msg("webhook_signature_rejected")
			writeError(w, requestID, err)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	}
}

// withDeadline enforces the endpoint's hard latency budget (spec.md §5),
// cancelling ctx once d elapses so downstream calls fail fast rather than
// holding the connection open indefinitely.
func withDeadline(d time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := r.Context(), func() {}
		if d > 0 {
			ctx, cancel = context.WithTimeout(r.Context(), d)
		}
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
