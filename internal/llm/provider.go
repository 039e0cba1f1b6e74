// Package llm provides the extraction-facing LLM adapter (C3): structured
// fact extraction from a transcript chunk, and first-message summarization
// for the context-assembly pipeline. Grounded on the teacher's
// internal/llm.Provider contract, narrowed to the two operations this
// domain needs instead of full chat/tool-calling.
package llm

import (
	"context"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// ExtractedMemory is the structured-output shape an extraction call must
// produce for each candidate memory, before normalization and dedup.
type ExtractedMemory struct {
	Content     string            `json:"content"`
	Type        domain.MemoryType `json:"type"`
	Importance  int               `json:"importance"`
	Confidence  float64           `json:"confidence,omitempty"`
	SourceQuote string            `json:"source_quote,omitempty"`
}

// AgentProfile is the subset of agent/organization configuration an LLM
// call needs to stay on-brand and within the organization's preferences.
type AgentProfile struct {
	AgentID              string
	OrganizationID       string
	Persona              string
	ExtractionGuidance   string
	PreferredModel       string
}

// Provider is implemented by each concrete backend (Anthropic, OpenAI,
// Google). Extract and SummarizeFirstMessage are the only two operations
// this domain's LLM Adapter needs from a chat-completion backend.
type Provider interface {
	// Extract asks the model to pull candidate memories out of a single
	// transcript chunk. The returned slice may be empty. Implementations
	// must validate the model's raw output against the ExtractedMemory
	// JSON schema and re-prompt exactly once on a schema violation before
	// surfacing apperr.InvalidLLMOutput.
	Extract(ctx context.Context, transcriptChunk string, profile AgentProfile) ([]ExtractedMemory, error)

	// SummarizeFirstMessage produces the short greeting-context string
	// the voice agent speaks first, informed by the caller's recent
	// memories.
	SummarizeFirstMessage(ctx context.Context, profile AgentProfile, recentMemories []domain.Memory) (string, error)

	// Name identifies the backend for logging and selector bookkeeping.
	Name() string
}
