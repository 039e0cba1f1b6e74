// Package contextassembler implements the Context Assembler (C6): the
// pre_call path that fans out recency, cross-agent-shareable, and profile
// lookups concurrently, merges them into a token-budgeted envelope, and
// asks the LLM Adapter for a first-message greeting. Grounded on the
// teacher's errgroup fan-out idiom (internal/agent/warpp.go) generalized
// from a two-branch auth/personalize race to a three-branch independent
// gather.
package contextassembler

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/extraction"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/profilecache"
)

// DefaultRecentLimit, DefaultContextMax, and DefaultTokenBudget mirror
// spec.md §4.6's defaults (recent-N, CONTEXT_MAX, and the token budget).
const (
	DefaultRecentLimit = 10
	DefaultContextMax  = 20
	DefaultTokenBudget = 2000
)

// Envelope is the structured JSON handed back to the voice platform on
// pre_call, partitioned by memory type plus a conflicts bucket.
type Envelope struct {
	FirstMessage         string           `json:"first_message"`
	Memories             []MemoryView     `json:"memories"`
	Preferences          []MemoryView     `json:"preferences"`
	RelationshipInsights []MemoryView     `json:"relationship_insights"`
	Conflicts            []MemoryView     `json:"conflicts"`
}

// MemoryView is the envelope's per-memory projection.
type MemoryView struct {
	MemoryID   string `json:"memory_id"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	Importance int    `json:"importance"`
}

// Assembler implements C6.
type Assembler struct {
	Store        memorystore.Adapter
	Provider     llm.Provider
	ProfileCache *profilecache.Cache

	RecentLimit int
	ContextMax  int
	TokenBudget int
}

// Assemble builds the pre_call envelope for (callerID, agentID,
// organizationID). A missing or unknown callerID degrades to a generic
// greeting with empty arrays rather than failing the request, per spec.md
// §4.6 step 5. Partial upstream failures (a slow/broken recency or
// shareable-memory fetch) degrade the same way for that branch alone: the
// request never fails solely because one upstream call errored.
func (a *Assembler) Assemble(ctx context.Context, callerID, agentID, organizationID string) (Envelope, error) {
	profile, profileErr := a.fetchProfile(ctx, agentID, organizationID)
	if profileErr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(profileErr).Str("agent_id", agentID).Msg("context_assembler_profile_unavailable")
	}

	if callerID == "" {
		return a.genericEnvelope(ctx, profile), nil
	}

	var recent, shareable []domain.Memory
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent = a.fetchRecent(gctx, callerID, agentID, organizationID)
		return nil
	})
	g.Go(func() error {
		shareable = a.fetchShareable(gctx, callerID, organizationID)
		return nil
	})
	_ = g.Wait()

	merged := mergeByID(recent, shareable, a.contextMax())

	firstMessage, err := a.Provider.SummarizeFirstMessage(ctx, profile, merged)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_assembler_summarize_failed")
		firstMessage = genericGreeting(profile)
	}

	return buildEnvelope(firstMessage, merged, a.tokenBudget()), nil
}

func (a *Assembler) fetchProfile(ctx context.Context, agentID, organizationID string) (llm.AgentProfile, error) {
	if a.ProfileCache == nil || agentID == "" {
		return llm.AgentProfile{AgentID: agentID, OrganizationID: organizationID}, nil
	}
	v, err := a.ProfileCache.Get(ctx, agentID)
	if err != nil {
		return llm.AgentProfile{AgentID: agentID, OrganizationID: organizationID}, err
	}
	if profile, ok := v.(llm.AgentProfile); ok {
		return profile, nil
	}
	return llm.AgentProfile{AgentID: agentID, OrganizationID: organizationID}, nil
}

func (a *Assembler) fetchRecent(ctx context.Context, callerID, agentID, organizationID string) []domain.Memory {
	memories, err := a.Store.Recent(ctx, memorystore.ScopeCallerAndAgent, memorystore.ScopedQuery{CallerID: callerID, AgentID: agentID, OrganizationID: organizationID}, a.recentLimit())
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_assembler_recent_fetch_failed")
		return nil
	}
	return memories
}

func (a *Assembler) fetchShareable(ctx context.Context, callerID, organizationID string) []domain.Memory {
	memories, err := a.Store.Recent(ctx, memorystore.ScopeCallerAndOrgShareable, memorystore.ScopedQuery{CallerID: callerID, OrganizationID: organizationID}, a.contextMax())
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_assembler_shareable_fetch_failed")
		return nil
	}
	return memories
}

func (a *Assembler) genericEnvelope(ctx context.Context, profile llm.AgentProfile) Envelope {
	greeting, err := a.Provider.SummarizeFirstMessage(ctx, profile, nil)
	if err != nil || greeting == "" {
		greeting = genericGreeting(profile)
	}
	return Envelope{FirstMessage: greeting}
}

func genericGreeting(profile llm.AgentProfile) string {
	if profile.Persona != "" {
		return "Hello, how can " + profile.Persona + " help you today?"
	}
	return "Hello, how can I help you today?"
}

// mergeByID merges recent and shareable by memory_id, preferring the
// agent-owned (recent) copy on a tie, then caps the result at max,
// preserving recent-first ordering from each source list.
func mergeByID(recent, shareable []domain.Memory, max int) []domain.Memory {
	seen := make(map[string]bool, len(recent)+len(shareable))
	merged := make([]domain.Memory, 0, max)
	for _, m := range recent {
		if seen[m.MemoryID] {
			continue
		}
		seen[m.MemoryID] = true
		merged = append(merged, m)
	}
	for _, m := range shareable {
		if seen[m.MemoryID] {
			continue
		}
		seen[m.MemoryID] = true
		merged = append(merged, m)
	}
	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

func buildEnvelope(firstMessage string, memories []domain.Memory, tokenBudget int) Envelope {
	memories = enforceTokenBudget(memories, tokenBudget)

	env := Envelope{FirstMessage: firstMessage}
	for _, m := range memories {
		view := MemoryView{MemoryID: m.MemoryID, Content: m.Content, Type: string(m.Type), Importance: m.Importance}
		switch {
		case m.Metadata != nil && m.Metadata["conflict_group_id"] != "":
			env.Conflicts = append(env.Conflicts, view)
		case m.Type == domain.MemoryPreference:
			env.Preferences = append(env.Preferences, view)
		case m.Type == domain.MemoryRelationship:
			env.RelationshipInsights = append(env.RelationshipInsights, view)
		default:
			env.Memories = append(env.Memories, view)
		}
	}
	return env
}

// enforceTokenBudget drops the lowest-importance memories first until the
// remaining set's estimated token count fits within budget.
func enforceTokenBudget(memories []domain.Memory, budget int) []domain.Memory {
	if budget <= 0 {
		return memories
	}
	ordered := append([]domain.Memory(nil), memories...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Importance > ordered[j].Importance })

	kept := make([]domain.Memory, 0, len(ordered))
	total := 0
	for _, m := range ordered {
		n := extraction.CountTokens(m.Content)
		if total+n > budget {
			continue
		}
		kept = append(kept, m)
		total += n
	}
	return kept
}

func (a *Assembler) recentLimit() int {
	if a.RecentLimit > 0 {
		return a.RecentLimit
	}
	return DefaultRecentLimit
}

func (a *Assembler) contextMax() int {
	if a.ContextMax > 0 {
		return a.ContextMax
	}
	return DefaultContextMax
}

func (a *Assembler) tokenBudget() int {
	if a.TokenBudget > 0 {
		return a.TokenBudget
	}
	return DefaultTokenBudget
}
