package adminapi

import (
	"net/http"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
)

// Server is the Admin API: operator-facing endpoints distinct from the
// Webhook Dispatcher (C9), covering the recovery sweep, privacy erasure,
// deferred-job inspection, and health/metrics.
type Server struct {
	archive     *payloadstore.Archive
	scheduler   *jobs.Scheduler
	persistence *jobs.DiskPersistence
	vectorStore memorystore.Adapter
	relational  memorystore.RelationalStore
	auth        *Authenticator

	mux *http.ServeMux
}

// Dependencies bundles everything the Admin API fans out to. Persistence
// may be nil (in-memory-only deployments never have deferred jobs to
// inspect; the deferred-jobs endpoint then always returns an empty list).
type Dependencies struct {
	Archive     *payloadstore.Archive
	Scheduler   *jobs.Scheduler
	Persistence *jobs.DiskPersistence
	VectorStore memorystore.Adapter
	Relational  memorystore.RelationalStore
	Auth        *Authenticator
}

// NewServer builds the Admin API and registers its routes.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		archive:     deps.Archive,
		scheduler:   deps.Scheduler,
		persistence: deps.Persistence,
		vectorStore: deps.VectorStore,
		relational:  deps.Relational,
		auth:        deps.Auth,
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /admin/v1/recovery-sweep", s.auth.RequireBearerToken(s.handleRecoverySweep))
	s.mux.HandleFunc("DELETE /admin/v1/callers/{caller_id}", s.auth.RequireBearerToken(s.handleDeleteCaller))
	s.mux.HandleFunc("GET /admin/v1/jobs/deferred", s.auth.RequireBearerToken(s.handleListDeferredJobs))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
}
