// Package adminapi implements the operator-facing Admin API: recovery-sweep
// triggering, privacy erasure, deferred-job inspection, and health/metrics
// endpoints. Every mutating endpoint requires an OIDC bearer token, distinct
// from the HMAC webhook-signature scheme the Webhook Dispatcher (C9) uses
// for conversational-AI-provider callbacks — these are human operator
// actions. Grounded on the teacher's internal/auth OIDC provider/verifier
// construction, adapted from its cookie-session browser login flow to
// stateless bearer-token verification, the natural shape for machine
// operator calls rather than a browser redirect dance.
package adminapi

import (
	"context"
	"net/http"
	"strings"

	oidc "github.com/coreos/go-oidc/v3/oidc"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

// Authenticator verifies bearer tokens presented to the Admin API against
// an OIDC provider.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
}

// NewAuthenticator discovers the OIDC provider at issuer and builds a
// verifier scoped to audience (the expected client ID / audience claim).
func NewAuthenticator(ctx context.Context, issuer, audience string) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &Authenticator{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// operatorContextKey prevents collisions for the context value storing the
// authenticated operator's subject claim.
type operatorContextKey struct{}

// WithOperator returns a context carrying the operator subject.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, subject)
}

// Operator returns the authenticated operator subject, if any.
func Operator(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(operatorContextKey{}).(string)
	return subject, ok
}

// RequireBearerToken wraps next, rejecting any request without a valid
// OIDC bearer token in its Authorization header. A nil Authenticator (no
// issuer configured) rejects every request rather than allowing them
// through, so a missing OIDC configuration fails closed instead of
// silently exposing operator endpoints.
func (a *Authenticator) RequireBearerToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a == nil || a.verifier == nil {
			writeError(w, apperr.New(apperr.Internal, "admin api oidc authentication not configured"))
			return
		}
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, apperr.New(apperr.SignatureMissing, "admin bearer token missing"))
			return
		}
		idToken, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, apperr.Wrap(apperr.SignatureMismatch, "admin bearer token rejected", err))
			return
		}
		next(w, r.WithContext(WithOperator(r.Context(), idToken.Subject)))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
