// Package search implements the Search Service (C7): the in_call_search
// synchronous lookup path. Grounded on the teacher's handlers_memory.go
// request/response shape, narrowed to the single semantic_search operation
// this domain needs and templated (no LLM call) summary synthesis.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/analytics"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
)

// DefaultLimit and DefaultMinScore mirror spec.md §4.7's defaults.
const (
	DefaultLimit    = 5
	DefaultMinScore = 0.70
	MaxQueryChars   = 1000
	MaxLimit        = 100
)

// Request is the in_call_search input, already validated/parsed by the
// Webhook Dispatcher (C9).
type Request struct {
	QueryText       string
	CallerID        string
	AgentID         string
	OrganizationID  string
	SearchAllAgents bool
	Limit           int
	MinScore        float64
}

// Hit is a single result row, verbatim per spec.md §4.7's field list.
type Hit struct {
	MemoryID       string    `json:"memory_id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Importance     int       `json:"importance"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
}

// Response is the in_call_search output.
type Response struct {
	Results []Hit  `json:"results"`
	Summary string `json:"summary"`
}

// Service implements C7. The Memory-Store Adapter's underlying connection
// pool is the only shared resource; concurrent Search calls for different
// callers never block on each other beyond that pool's own limits.
type Service struct {
	Store     memorystore.Adapter
	Analytics *analytics.Sink
}

// Search resolves req against the store and returns results ordered by
// score descending, plus a one-line templated summary of the top hit.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	startedAt := time.Now()
	if len(req.QueryText) > MaxQueryChars {
		return Response{}, apperr.New(apperr.PayloadSchema, "query_text exceeds max length")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	scope := memorystore.ScopeCallerAndAgent
	if req.SearchAllAgents {
		scope = memorystore.ScopeCallerAndOrgShareable
	}
	q := memorystore.ScopedQuery{CallerID: req.CallerID, AgentID: req.AgentID, OrganizationID: req.OrganizationID}

	scored, err := s.Store.SemanticSearch(ctx, scope, q, req.QueryText, limit, minScore, memorystore.SearchFilters{})
	if err != nil {
		return Response{}, err
	}

	hits := make([]Hit, len(scored))
	for i, sc := range scored {
		hits[i] = Hit{
			MemoryID:       sc.Memory.MemoryID,
			Content:        sc.Memory.Content,
			Type:           string(sc.Memory.Type),
			Importance:     sc.Memory.Importance,
			Score:          sc.Score,
			CreatedAt:      sc.Memory.CreatedAt,
			ConversationID: sc.Memory.ConversationID,
			AgentID:        sc.Memory.AgentID,
		}
	}

	s.Analytics.RecordSearchLatency(ctx, req.CallerID, req.AgentID, req.OrganizationID, time.Since(startedAt), len(hits))

	return Response{Results: hits, Summary: summarize(hits)}, nil
}

// summarize produces a one-line natural-language description of the
// top-ranked hit without an extra LLM call, per spec.md §4.7.
func summarize(hits []Hit) string {
	if len(hits) == 0 {
		return "No matching memories found."
	}
	top := hits[0]
	content := strings.TrimSpace(top.Content)
	if len(content) > 140 {
		content = content[:140] + "..."
	}
	return fmt.Sprintf("Most relevant memory (%s, importance %d/10): %s", top.Type, top.Importance, content)
}
