package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
)

// scriptedAdapter is a memorystore.Adapter test double whose
// BatchFindSimilar response is scripted per test, so store-side dedup
// branches can be exercised without a real embedding space.
type scriptedAdapter struct {
	hits            []memorystore.SimilarHit
	stored          []domain.Memory
	reinforcedIDs   []string
	markedShareable map[string]bool
	taggedConflicts map[string]string
}

func newScriptedAdapter(hits []memorystore.SimilarHit) *scriptedAdapter {
	return &scriptedAdapter{hits: hits, markedShareable: make(map[string]bool), taggedConflicts: make(map[string]string)}
}

func (s *scriptedAdapter) Store(_ context.Context, m domain.Memory) (string, error) {
	if m.MemoryID == "" {
		m.MemoryID = "generated-id"
	}
	s.stored = append(s.stored, m)
	return m.MemoryID, nil
}

func (s *scriptedAdapter) SemanticSearch(context.Context, memorystore.Scope, memorystore.ScopedQuery, string, int, float64, memorystore.SearchFilters) ([]memorystore.Scored, error) {
	return nil, nil
}

func (s *scriptedAdapter) BatchFindSimilar(context.Context, memorystore.ScopedQuery, []string, float64) ([]memorystore.SimilarHit, error) {
	return s.hits, nil
}

func (s *scriptedAdapter) Reinforce(_ context.Context, memoryID string, _ string, _ time.Time) error {
	s.reinforcedIDs = append(s.reinforcedIDs, memoryID)
	return nil
}

func (s *scriptedAdapter) MarkShareable(_ context.Context, memoryID string, shareable bool) error {
	s.markedShareable[memoryID] = shareable
	return nil
}

func (s *scriptedAdapter) TagConflict(_ context.Context, memoryID string, groupID string) error {
	s.taggedConflicts[memoryID] = groupID
	return nil
}

func (s *scriptedAdapter) DeleteByCaller(context.Context, string) error { return nil }
func (s *scriptedAdapter) Close() error                                 { return nil }

func candidateOf(content string, typ domain.MemoryType, importance int) Candidate {
	return Candidate{Memory: domain.Memory{
		CallerID:       "caller-1",
		OrganizationID: "org-1",
		Content:        content,
		Type:           typ,
		Importance:     importance,
		ContentHash:    contentHash(content),
	}}
}

func defaultThresholds() thresholds {
	return thresholds{Similarity: domain.DefaultSimilarityThreshold, Conflict: domain.DefaultConflictThreshold, Share: domain.DefaultShareThreshold}
}

func TestResolveAndCommitPureDuplicateReinforces(t *testing.T) {
	existing := domain.Memory{MemoryID: "mem-1", Content: "likes tea", ContentHash: contentHash("likes tea")}
	adapter := newScriptedAdapter([]memorystore.SimilarHit{{Found: true, Memory: existing, Score: 1.0}})

	c := candidateOf("likes tea", domain.MemoryPreference, 5)
	decisions, err := ResolveAndCommit(context.Background(), adapter, memorystore.ScopedQuery{CallerID: "caller-1"}, []Candidate{c}, defaultThresholds(), time.Now())
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	require.Equal(t, OutcomeReinforcedDuplicate, decisions[0].Outcome)
	require.Equal(t, []string{"mem-1"}, adapter.reinforcedIDs)
	require.Empty(t, adapter.stored)
}

func TestResolveAndCommitSemanticHitReinforcesAndBumpsImportance(t *testing.T) {
	existing := domain.Memory{MemoryID: "mem-2", Content: "prefers tea", ContentHash: contentHash("prefers tea"), Importance: 4}
	adapter := newScriptedAdapter([]memorystore.SimilarHit{{Found: true, Memory: existing, Score: 0.9}})

	c := candidateOf("really prefers tea", domain.MemoryPreference, 7)
	decisions, err := ResolveAndCommit(context.Background(), adapter, memorystore.ScopedQuery{CallerID: "caller-1"}, []Candidate{c}, defaultThresholds(), time.Now())
	require.NoError(t, err)
	require.Equal(t, OutcomeReinforcedSemantic, decisions[0].Outcome)
	require.Equal(t, []string{"mem-2"}, adapter.reinforcedIDs)
	require.False(t, adapter.markedShareable["mem-2"]) // bumped importance (7) still below DefaultShareThreshold(8)
}

func TestResolveAndCommitConflictStoresNewWithGroupID(t *testing.T) {
	existing := domain.Memory{MemoryID: "mem-3", Content: "lives in portland", ContentHash: contentHash("lives in portland")}
	adapter := newScriptedAdapter([]memorystore.SimilarHit{{Found: true, Memory: existing, Score: 0.75}})

	c := candidateOf("lives in seattle now", domain.MemoryFactual, 6)
	decisions, err := ResolveAndCommit(context.Background(), adapter, memorystore.ScopedQuery{CallerID: "caller-1"}, []Candidate{c}, defaultThresholds(), time.Now())
	require.NoError(t, err)
	require.Equal(t, OutcomeStoredConflict, decisions[0].Outcome)
	require.Len(t, adapter.stored, 1)
	require.Equal(t, "conflict-mem-3", adapter.stored[0].Metadata["conflict_group_id"])
	require.Equal(t, "conflict-mem-3", adapter.taggedConflicts["mem-3"])
}

func TestResolveAndCommitNoHitStoresNew(t *testing.T) {
	adapter := newScriptedAdapter([]memorystore.SimilarHit{{Found: false}})

	c := candidateOf("owns a cat", domain.MemoryFactual, 9)
	decisions, err := ResolveAndCommit(context.Background(), adapter, memorystore.ScopedQuery{CallerID: "caller-1"}, []Candidate{c}, defaultThresholds(), time.Now())
	require.NoError(t, err)
	require.Equal(t, OutcomeStoredNew, decisions[0].Outcome)
	require.Len(t, adapter.stored, 1)
	require.True(t, adapter.stored[0].Shareable)
}

func TestCollapseIntraBatchKeepsHighestImportanceAndMergesQuotes(t *testing.T) {
	a := candidateOf("owns a dog", domain.MemoryFactual, 3)
	a.SourceQuotes = []string{"q1"}
	b := candidateOf("owns a dog", domain.MemoryFactual, 8)
	b.SourceQuotes = []string{"q2"}

	out := CollapseIntraBatch([]Candidate{a, b})
	require.Len(t, out, 1)
	require.Equal(t, 8, out[0].Memory.Importance)
	require.ElementsMatch(t, []string{"q1", "q2"}, out[0].SourceQuotes)
}
