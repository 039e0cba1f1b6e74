// Package httpapi implements the Webhook Dispatcher (C9): the three public
// HTTP endpoints (pre_call, in_call_search, post_call), their shared
// middleware chain, and the uniform response envelope. Grounded on the
// teacher's internal/httpapi.Server mux-registration style, generalized
// from the playground API's CRUD routes to the three webhook entry points
// this domain exposes, each wrapped in otelhttp per the teacher's
// observability.NewHTTPClient instrumentation habit applied server-side.
package httpapi

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/contextassembler"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/search"
)

// Server is the Webhook Dispatcher: three endpoints sharing one
// authentication, deadline, and error-normalization middleware chain.
type Server struct {
	assembler  *contextassembler.Assembler
	search     *search.Service
	relational memorystore.RelationalStore
	archive    *payloadstore.Archive
	scheduler  *jobs.Scheduler

	hmacSecret    []byte
	signatureSkew time.Duration
	deadlines     config.DeadlineConfig

	mux *http.ServeMux
}

// Dependencies bundles everything the dispatcher fans out to.
type Dependencies struct {
	Assembler     *contextassembler.Assembler
	Search        *search.Service
	Relational    memorystore.RelationalStore
	Archive       *payloadstore.Archive
	Scheduler     *jobs.Scheduler
	HMACSecret    []byte
	SignatureSkew time.Duration
	Deadlines     config.DeadlineConfig
}

// NewServer builds the dispatcher and registers its routes.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		assembler:     deps.Assembler,
		search:        deps.Search,
		relational:    deps.Relational,
		archive:       deps.Archive,
		scheduler:     deps.Scheduler,
		hmacSecret:    deps.HMACSecret,
		signatureSkew: deps.SignatureSkew,
		deadlines:     deps.Deadlines,
		mux:           http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler, wrapping every request in an otelhttp
// span named "webhook_dispatcher".
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	otelhttp.NewHandler(s.mux, "webhook_dispatcher").ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /webhooks/pre_call", s.chain(s.deadlines.PreCall, s.handlePreCall))
	s.mux.HandleFunc("POST /webhooks/in_call_search", s.chain(s.deadlines.Search, s.handleInCallSearch))
	s.mux.HandleFunc("POST /webhooks/post_call", s.chain(s.deadlines.PostCall, s.handlePostCall))
}

// chain applies the shared middleware: fresh correlation id, signature
// verification, then the endpoint's hard deadline, in that order per
// spec.md §4.9.
func (s *Server) chain(deadline time.Duration, handler http.HandlerFunc) http.HandlerFunc {
	return withCorrelation(withSignature(s.hmacSecret, s.signatureSkew, withDeadline(deadline, handler)))
}
