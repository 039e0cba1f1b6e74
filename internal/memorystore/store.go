// Package memorystore implements the Memory-Store Adapter (C2): the
// CRUD, semantic-search, and reinforcement operations spec.md §4.2
// exposes over the external vector store, plus the relational bookkeeping
// for Caller/Conversation/Agent/Organization rows. Grounded on the
// teacher's internal/persistence/databases package (VectorStore interface,
// Qdrant adapter, Manager/factory pattern), generalized from the teacher's
// generic RAG-document vectors to this domain's Memory entity.
package memorystore

import (
	"context"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// Scope selects which memories a query may see, per spec.md §4.2/§4.6.
type Scope int

const (
	ScopeCallerOnly Scope = iota
	ScopeCallerAndAgent
	ScopeCallerAndOrgShareable
)

// SearchFilters narrows a semantic_search or batch_find_similar call.
type SearchFilters struct {
	Type          domain.MemoryType // empty = any
	MinImportance int
	MaxImportance int
	After         time.Time
	Before        time.Time
}

// ScopedQuery carries the identity context every C2 operation needs to
// resolve a Scope into concrete filter predicates.
type ScopedQuery struct {
	CallerID       string
	AgentID        string
	OrganizationID string
	ShareThreshold int
}

// Scored pairs a Memory with its similarity score in [0,1].
type Scored struct {
	Memory domain.Memory
	Score  float64
}

// SimilarHit is the result of a single batch_find_similar lookup: either
// the nearest existing memory above threshold, or Found=false.
type SimilarHit struct {
	Memory domain.Memory
	Score  float64
	Found  bool
}

// Adapter is the Memory-Store Adapter contract. Every method corresponds
// 1:1 to an operation named in spec.md §4.2.
type Adapter interface {
	// Store embeds and upserts memory, returning its assigned memory_id.
	Store(ctx context.Context, memory domain.Memory) (string, error)

	// SemanticSearch ranks existing memories against queryText within
	// scope, filtered by filters, returning at most limit hits scoring
	// at least minScore. Results are ordered by descending score.
	SemanticSearch(ctx context.Context, scope Scope, q ScopedQuery, queryText string, limit int, minScore float64, filters SearchFilters) ([]Scored, error)

	// BatchFindSimilar resolves, in one round trip, the nearest existing
	// memory for each of texts (scoped to the given caller) with score
	// at least threshold.
	BatchFindSimilar(ctx context.Context, q ScopedQuery, texts []string, threshold float64) ([]SimilarHit, error)

	// Recent returns the most recently created memories within scope,
	// ordered by created_at descending, for the Context Assembler's (C6)
	// recency fetch. Unlike SemanticSearch, ranking ignores relevance to
	// any query text.
	Recent(ctx context.Context, scope Scope, q ScopedQuery, limit int) ([]domain.Memory, error)

	// Reinforce atomically increments reinforcement_count, advances
	// last_reinforced_at to now, and records newConversationID in
	// provenance. May raise confidence.
	Reinforce(ctx context.Context, memoryID string, newConversationID string, now time.Time) error

	// MarkShareable flips a memory's cross-agent visibility flag.
	MarkShareable(ctx context.Context, memoryID string, shareable bool) error

	// TagConflict stamps memoryID's metadata.conflict_group_id so an
	// existing memory can be surfaced alongside the new candidate that
	// conflicted with it.
	TagConflict(ctx context.Context, memoryID string, groupID string) error

	// DeleteByCaller erases every memory belonging to callerID (privacy
	// erasure).
	DeleteByCaller(ctx context.Context, callerID string) error

	// Close releases any underlying connections.
	Close() error
}

// RelationalStore holds the Caller/Conversation/Agent/Organization
// bookkeeping that sits alongside the vector-backed Memory store. It is a
// separate interface since a deployment may run it against Postgres while
// keeping memories purely in the vector store's payload.
type RelationalStore interface {
	GetCaller(ctx context.Context, callerID string) (domain.Caller, bool, error)
	UpsertCaller(ctx context.Context, caller domain.Caller) error

	// DeleteCaller erases callerID's relational row as the other half of
	// privacy erasure alongside Adapter.DeleteByCaller's vector-store side.
	DeleteCaller(ctx context.Context, callerID string) error

	GetConversation(ctx context.Context, conversationID string) (domain.Conversation, bool, error)
	UpsertConversation(ctx context.Context, conv domain.Conversation) error

	GetOrganization(ctx context.Context, organizationID string) (domain.Organization, bool, error)
	GetAgent(ctx context.Context, agentID string) (domain.Agent, bool, error)

	Close() error
}

// Embedder converts text into the dense vector the external store
// indexes on. Kept as a narrow interface so the vector backend never
// needs to know which embedding provider produced the vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
