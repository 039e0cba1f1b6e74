package providers

import (
	"context"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// Selector implements llm.Provider by calling primary first and falling
// back to fallback only when primary fails with a transient error
// (timeout, 5xx, rate limit). Deterministic failures, such as a schema
// violation that survived the one reprompt, are not retried against the
// fallback since a second provider would not fix malformed model output
// caused by the prompt itself.
type Selector struct {
	primary  llm.Provider
	fallback llm.Provider
}

// NewSelector builds a Selector. fallback may be nil, in which case
// primary failures are surfaced directly.
func NewSelector(primary, fallback llm.Provider) *Selector {
	return &Selector{primary: primary, fallback: fallback}
}

func (s *Selector) Name() string {
	if s.fallback == nil {
		return s.primary.Name()
	}
	return s.primary.Name() + "+" + s.fallback.Name()
}

func (s *Selector) Extract(ctx context.Context, transcriptChunk string, profile llm.AgentProfile) ([]llm.ExtractedMemory, error) {
	out, err := s.primary.Extract(ctx, transcriptChunk, profile)
	if err == nil || s.fallback == nil || !apperr.IsTransient(err) {
		return out, err
	}
	observability.LoggerWithTrace(ctx).Warn().
		Err(err).
		Str("primary", s.primary.Name()).
		Str("fallback", s.fallback.Name()).
		Msg("llm_extract_falling_back")
	return s.fallback.Extract(ctx, transcriptChunk, profile)
}

func (s *Selector) SummarizeFirstMessage(ctx context.Context, profile llm.AgentProfile, recentMemories []domain.Memory) (string, error) {
	out, err := s.primary.SummarizeFirstMessage(ctx, profile, recentMemories)
	if err == nil || s.fallback == nil || !apperr.IsTransient(err) {
		return out, err
	}
	observability.LoggerWithTrace(ctx).Warn().
		Err(err).
		Str("primary", s.primary.Name()).
		Str("fallback", s.fallback.Name()).
		Msg("llm_summarize_falling_back")
	return s.fallback.SummarizeFirstMessage(ctx, profile, recentMemories)
}
