package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
)

// fakeProvider returns one ExtractedMemory per chunk, derived from the
// chunk's own text so tests can assert which chunk produced which
// candidate. failMarker, when set, fails every call whose transcript
// contains the given marker.
type fakeProvider struct {
	failMarker string
	calls      int
}

func (f *fakeProvider) Extract(_ context.Context, transcriptChunk string, _ llm.AgentProfile) ([]llm.ExtractedMemory, error) {
	f.calls++
	if f.failMarker != "" && strings.Contains(transcriptChunk, f.failMarker) {
		return nil, errors.New("boom")
	}
	return []llm.ExtractedMemory{{Content: transcriptChunk, Type: domain.MemoryFactual, Importance: 5}}, nil
}

func (f *fakeProvider) SummarizeFirstMessage(context.Context, llm.AgentProfile, []domain.Memory) (string, error) {
	return "", nil
}

func (f *fakeProvider) Name() string { return "fake" }

type constEmbedder struct{ dims int }

func (c constEmbedder) Dimensions() int { return c.dims }
func (c constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, c.dims)
		for j, r := range t {
			v[j%c.dims] += float32(r)
		}
		out[i] = v
	}
	return out, nil
}

func newTestPipeline(provider llm.Provider) (*Pipeline, memorystore.Adapter) {
	store := memorystore.NewAdapter(memorystore.NewMemoryVectorStore(16), constEmbedder{dims: 16})
	return &Pipeline{
		Store:      store,
		Relational: memorystore.NewMemoryRelationalStore(),
		Provider:   provider,
		Locker:     NewLocalCallerLocker(),
	}, store
}

func conversationWithTurns(n int) domain.Conversation {
	turns := make([]domain.Turn, 0, n)
	for i := 0; i < n; i++ {
		turns = append(turns, domain.Turn{Role: domain.RoleUser, Text: "turn content number " + strings.Repeat("x", i%5)})
	}
	return domain.Conversation{
		ConversationID: "conv-1",
		CallerID:       "caller-1",
		AgentID:        "agent-1",
		OrganizationID: "org-1",
		Status:         domain.StatusExtractionPending,
		Transcript:     turns,
	}
}

func TestPipelineRunSucceedsAndStoresMemories(t *testing.T) {
	provider := &fakeProvider{}
	p, store := newTestPipeline(provider)
	conv := conversationWithTurns(3)

	result, err := p.Run(context.Background(), conv, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, JobSuccess, result.Outcome)
	require.Empty(t, result.FailedChunkIndices)
	require.NotEmpty(t, result.Decisions)

	results, err := store.SemanticSearch(context.Background(), memorystore.ScopeCallerOnly,
		memorystore.ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "turn content number", 10, 0, memorystore.SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestPipelineReinforcesRepeatedConversation(t *testing.T) {
	provider := &fakeProvider{}
	p, store := newTestPipeline(provider)
	conv := conversationWithTurns(1)

	_, err := p.Run(context.Background(), conv, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)

	conv2 := conv
	conv2.ConversationID = "conv-2"
	result2, err := p.Run(context.Background(), conv2, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, JobSuccess, result2.Outcome)
	require.Len(t, result2.Decisions, 1)
	require.Equal(t, OutcomeReinforcedDuplicate, result2.Decisions[0].Outcome)

	hits, err := store.SemanticSearch(context.Background(), memorystore.ScopeCallerOnly,
		memorystore.ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, "turn content number", 10, 0, memorystore.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 1, hits[0].Memory.ReinforcementCount)
}

func TestPipelinePartialOutcomeOnOneChunkFailure(t *testing.T) {
	provider := &fakeProvider{failMarker: "BADCHUNK"}
	p, _ := newTestPipeline(provider)

	conv := conversationWithTurns(0)
	conv.Transcript = []domain.Turn{
		{Role: domain.RoleUser, Text: strings.Repeat("good content ", 2000)},
		{Role: domain.RoleUser, Text: "BADCHUNK marker content " + strings.Repeat("z", 2000)},
	}
	p.ChunkTokens = 10

	result, err := p.Run(context.Background(), conv, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, JobPartial, result.Outcome)
	require.NotEmpty(t, result.FailedChunkIndices)
}

func TestPipelineFailedOutcomeWhenAllChunksFail(t *testing.T) {
	provider := &fakeProvider{failMarker: "turn"}
	p, _ := newTestPipeline(provider)
	conv := conversationWithTurns(2)

	result, err := p.Run(context.Background(), conv, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, JobFailed, result.Outcome)
	require.Empty(t, result.Decisions)
}

func TestPipelineSkipsStoreForAnonymousCaller(t *testing.T) {
	provider := &fakeProvider{}
	p, _ := newTestPipeline(provider)
	conv := conversationWithTurns(1)
	conv.CallerID = ""

	result, err := p.Run(context.Background(), conv, llm.AgentProfile{AgentID: "agent-1"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, JobSuccess, result.Outcome)
	require.Empty(t, result.Decisions)
}
