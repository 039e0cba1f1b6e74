package adminapi

import (
	"net/http"
	"strconv"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
)

func (s *Server) handleRecoverySweep(w http.ResponseWriter, r *http.Request) {
	recovered, err := s.sweepOnce(r.Context())
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "recovery sweep failed", err))
		return
	}
	writeData(w, map[string]any{"recovered": recovered})
}

func (s *Server) handleDeleteCaller(w http.ResponseWriter, r *http.Request) {
	callerID := r.PathValue("caller_id")
	if callerID == "" {
		writeError(w, apperr.New(apperr.PayloadSchema, "caller_id path parameter required"))
		return
	}
	if s.vectorStore == nil {
		writeError(w, apperr.New(apperr.Internal, "memory store not configured"))
		return
	}
	if err := s.vectorStore.DeleteByCaller(r.Context(), callerID); err != nil {
		writeError(w, apperr.Wrap(apperr.StoreUnavailable, "erase caller memories", err))
		return
	}
	if s.relational != nil {
		if err := s.relational.DeleteCaller(r.Context(), callerID); err != nil {
			writeError(w, apperr.Wrap(apperr.StoreUnavailable, "erase caller row", err))
			return
		}
	}
	writeData(w, map[string]any{"caller_id": callerID, "deleted": true})
}

func (s *Server) handleListDeferredJobs(w http.ResponseWriter, r *http.Request) {
	if s.persistence == nil {
		writeData(w, map[string]any{"jobs": []any{}})
		return
	}
	deferred, err := s.persistence.LoadDeferred()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "list deferred jobs", err))
		return
	}
	writeData(w, map[string]any{"jobs": deferred})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]any{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if s.scheduler != nil {
		depth = s.scheduler.Depth()
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("# HELP extraction_queue_depth Number of extraction jobs currently queued.\n"))
	_, _ = w.Write([]byte("# TYPE extraction_queue_depth gauge\n"))
	_, _ = w.Write([]byte("extraction_queue_depth " + strconv.Itoa(depth) + "\n"))
}
