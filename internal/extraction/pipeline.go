package extraction

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// DefaultExtractParallelism is EXTRACT_PARALLELISM's default, per spec.md §4.5.
const DefaultExtractParallelism = 3

// JobOutcome is the job-level result of running the pipeline once over a
// Conversation's transcript, per stage "Failure semantics".
type JobOutcome string

const (
	JobSuccess JobOutcome = "success"
	JobPartial JobOutcome = "partial"
	JobFailed  JobOutcome = "failed"
)

// Result is what Pipeline.Run returns to the job scheduler (C8).
type Result struct {
	Outcome           JobOutcome
	FailedChunkIndices []int
	Decisions         []Decision
}

// Pipeline wires the Extraction Pipeline's stages together: chunk, extract
// (via the LLM Adapter), normalize, intra-batch dedup, store-side dedup
// (via the Memory-Store Adapter), and cross-agent propagation.
type Pipeline struct {
	Store       memorystore.Adapter
	Relational  memorystore.RelationalStore
	Provider    llm.Provider
	Locker      CallerLocker
	Publisher   *Publisher

	ChunkTokens        int
	ExtractParallelism int
}

// chunkResult is one chunk's outcome: either a batch of normalized
// candidates, or a failure.
type chunkResult struct {
	index      int
	candidates []Candidate
	err        error
}

// Run executes the full pipeline for conv, whose Transcript must already be
// populated, against profile (the extraction persona/guidance for
// conv.AgentID). When conv.CallerID is empty the store-side stages are
// skipped and nothing is written. now is injected for deterministic testing.
func (p *Pipeline) Run(ctx context.Context, conv domain.Conversation, profile llm.AgentProfile, now time.Time) (Result, error) {
	chunks := ChunkTranscript(conv.Transcript, p.chunkTokens())
	if len(chunks) == 0 {
		return Result{Outcome: JobSuccess}, nil
	}

	results := p.extractAll(ctx, chunks, conv, profile)

	var candidates []Candidate
	var failed []int
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.index)
			observability.LoggerWithTrace(ctx).Warn().
				Err(r.err).
				Int("chunk_index", r.index).
				Str("conversation_id", conv.ConversationID).
				Msg("extraction_chunk_failed")
			continue
		}
		candidates = append(candidates, r.candidates...)
	}

	outcome := jobOutcome(len(chunks), len(failed))
	if outcome == JobFailed {
		return Result{Outcome: outcome, FailedChunkIndices: failed}, nil
	}

	candidates = CollapseIntraBatch(candidates)

	var decisions []Decision
	if conv.CallerID != "" && len(candidates) > 0 {
		th, err := p.resolveThresholds(ctx, conv.OrganizationID)
		if err != nil {
			return Result{Outcome: JobFailed, FailedChunkIndices: allIndices(len(chunks))}, err
		}
		q := memorystore.ScopedQuery{CallerID: conv.CallerID, AgentID: conv.AgentID, OrganizationID: conv.OrganizationID, ShareThreshold: th.Share}

		release, err := p.Locker.Lock(ctx, conv.CallerID)
		if err != nil {
			return Result{Outcome: JobFailed, FailedChunkIndices: allIndices(len(chunks))}, err
		}
		decisions, err = ResolveAndCommit(ctx, p.Store, q, candidates, th, now)
		release()
		if err != nil {
			// Every chunk's content fed the one store-side dedup round
			// trip, so a failure here invalidates the whole batch.
			return Result{Outcome: JobFailed, FailedChunkIndices: allIndices(len(chunks))}, err
		}
		p.propagate(ctx, conv, decisions)
	}

	return Result{Outcome: outcome, FailedChunkIndices: failed, Decisions: decisions}, nil
}

func (p *Pipeline) chunkTokens() int {
	if p.ChunkTokens > 0 {
		return p.ChunkTokens
	}
	return DefaultChunkTokens
}

func (p *Pipeline) extractParallelism() int {
	if p.ExtractParallelism > 0 {
		return p.ExtractParallelism
	}
	return DefaultExtractParallelism
}

// extractAll runs stage 2 (extract) and stage 3 (normalize) for every
// chunk, bounded to ExtractParallelism concurrent LLM calls.
func (p *Pipeline) extractAll(ctx context.Context, chunks []Chunk, conv domain.Conversation, profile llm.AgentProfile) []chunkResult {
	results := make([]chunkResult, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.extractParallelism())

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			raw, err := p.Provider.Extract(gctx, chunk.Render(), profile)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[chunk.Index] = chunkResult{index: chunk.Index, err: err}
				return nil
			}
			base := domain.Memory{
				CallerID:       conv.CallerID,
				ConversationID: conv.ConversationID,
				AgentID:        conv.AgentID,
				OrganizationID: conv.OrganizationID,
			}
			candidates := make([]Candidate, 0, len(raw))
			for _, r := range raw {
				if c, ok := Normalize(r, base); ok {
					candidates = append(candidates, c)
				}
			}
			results[chunk.Index] = chunkResult{index: chunk.Index, candidates: candidates}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) resolveThresholds(ctx context.Context, organizationID string) (thresholds, error) {
	th := thresholds{Similarity: domain.DefaultSimilarityThreshold, Conflict: domain.DefaultConflictThreshold, Share: domain.DefaultShareThreshold}
	if p.Relational == nil || organizationID == "" {
		return th, nil
	}
	org, ok, err := p.Relational.GetOrganization(ctx, organizationID)
	if err != nil {
		return th, apperr.Wrap(apperr.StoreUnavailable, "load organization thresholds", err)
	}
	if !ok {
		return th, nil
	}
	if org.SimilarityThreshold > 0 {
		th.Similarity = org.SimilarityThreshold
	}
	if org.ShareThreshold > 0 {
		th.Share = org.ShareThreshold
	}
	return th, nil
}

func (p *Pipeline) propagate(ctx context.Context, conv domain.Conversation, decisions []Decision) {
	if p.Publisher == nil {
		return
	}
	for _, d := range decisions {
		switch d.Outcome {
		case OutcomeStoredNew, OutcomeStoredConflict:
			if d.Candidate.Memory.Shareable {
				p.Publisher.PublishShareable(ctx, ShareableEvent{
					MemoryID:       d.MemoryID,
					CallerID:       conv.CallerID,
					OrganizationID: conv.OrganizationID,
					Importance:     d.Candidate.Memory.Importance,
					Timestamp:      time.Now().UTC(),
				})
			}
		case OutcomeReinforcedDuplicate, OutcomeReinforcedSemantic:
			p.Publisher.PublishReinforced(ctx, ReinforcedEvent{
				MemoryID:       d.MemoryID,
				ConversationID: conv.ConversationID,
				Timestamp:      time.Now().UTC(),
			})
		}
	}
}

func jobOutcome(total, failed int) JobOutcome {
	switch {
	case failed == 0:
		return JobSuccess
	case failed < total:
		return JobPartial
	default:
		return JobFailed
	}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
