package memorystore

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// fakeEmbedder produces a deterministic bag-of-words embedding: each word
// hashes to a signed unit contribution in one of dims buckets, so identical
// texts hash identically and unrelated texts land far apart in cosine terms
// — unlike a plain per-character sum, which correlates any two English
// sentences through shared letter frequency. Good enough for dedup/threshold
// tests without a real embedding API.
type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Dimensions() int { return f.dims }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, f.dims)
		for _, word := range strings.Fields(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			sum := h.Sum32()
			idx := int(sum) % f.dims
			sign := float32(1)
			if (sum>>8)%2 != 0 {
				sign = -1
			}
			vec[idx] += sign
		}
		out[i] = vec
	}
	return out, nil
}

func newTestAdapter() Adapter {
	return NewAdapter(NewMemoryVectorStore(16), fakeEmbedder{dims: 16})
}

func TestStoreAndSemanticSearchRoundTrip(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	id, err := a.Store(ctx, domain.Memory{
		CallerID:       "caller-1",
		AgentID:        "agent-1",
		OrganizationID: "org-1",
		Content:        "caller prefers window seats",
		Type:           domain.MemoryPreference,
		Importance:     6,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := a.SemanticSearch(ctx, ScopeCallerAndAgent, ScopedQuery{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1"}, "caller prefers window seats", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "caller prefers window seats", results[0].Memory.Content)
}

func TestSemanticSearchScopedToAgentExcludesOtherAgent(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	_, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "likes jazz", Type: domain.MemoryPreference, Importance: 5})
	require.NoError(t, err)

	results, err := a.SemanticSearch(ctx, ScopeCallerAndAgent, ScopedQuery{CallerID: "caller-1", AgentID: "agent-2", OrganizationID: "org-1"}, "likes jazz", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSemanticSearchOrgShareableRequiresShareableFlag(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	_, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "owns a dog", Type: domain.MemoryFactual, Importance: 9, Shareable: true})
	require.NoError(t, err)
	_, err = a.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "ordered a pizza", Type: domain.MemoryFactual, Importance: 2, Shareable: false})
	require.NoError(t, err)

	results, err := a.SemanticSearch(ctx, ScopeCallerAndOrgShareable, ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "owns a dog", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "owns a dog", results[0].Memory.Content)
}

func TestBatchFindSimilarOneRoundTripSemantics(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	_, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", OrganizationID: "org-1", Content: "lives in seattle", Type: domain.MemoryFactual, Importance: 7})
	require.NoError(t, err)

	hits, err := a.BatchFindSimilar(ctx, ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, []string{"lives in seattle", "completely unrelated text about rockets"}, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.True(t, hits[0].Found)
	require.False(t, hits[1].Found)
}

func TestReinforceIncrementsCountAndAdvancesTimestamp(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	id, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", OrganizationID: "org-1", Content: "drives a tesla", Type: domain.MemoryFactual, Importance: 5})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, a.Reinforce(ctx, id, "conv-2", now))

	results, err := a.SemanticSearch(ctx, ScopeCallerOnly, ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "drives a tesla", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Memory.ReinforcementCount)
	require.WithinDuration(t, now, results[0].Memory.LastReinforcedAt, time.Second)
}

func TestMarkShareableFlipsFlag(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	id, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", OrganizationID: "org-1", Content: "works remotely", Type: domain.MemoryFactual, Importance: 3, Shareable: false})
	require.NoError(t, err)
	require.NoError(t, a.MarkShareable(ctx, id, true))

	results, err := a.SemanticSearch(ctx, ScopeCallerAndOrgShareable, ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "works remotely", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Memory.Shareable)
}

func TestRecentOrdersByCreatedAtDescending(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour).UTC()
	newer := time.Now().UTC()
	_, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "older memory", Type: domain.MemoryFactual, Importance: 4, CreatedAt: older})
	require.NoError(t, err)
	_, err = a.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "newer memory", Type: domain.MemoryFactual, Importance: 4, CreatedAt: newer})
	require.NoError(t, err)

	recent, err := a.Recent(ctx, ScopeCallerAndAgent, ScopedQuery{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1"}, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "newer memory", recent[0].Content)
	require.Equal(t, "older memory", recent[1].Content)
}

func TestDeleteByCallerErasesAllMemories(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()

	_, err := a.Store(ctx, domain.Memory{CallerID: "caller-1", OrganizationID: "org-1", Content: "first fact", Type: domain.MemoryFactual, Importance: 4})
	require.NoError(t, err)
	_, err = a.Store(ctx, domain.Memory{CallerID: "caller-1", OrganizationID: "org-1", Content: "second fact", Type: domain.MemoryFactual, Importance: 4})
	require.NoError(t, err)

	require.NoError(t, a.DeleteByCaller(ctx, "caller-1"))

	results, err := a.SemanticSearch(ctx, ScopeCallerOnly, ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "fact", 5, 0, SearchFilters{})
	require.NoError(t, err)
	require.Empty(t, results)
}
