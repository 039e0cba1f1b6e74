// Package anthropic adapts the Anthropic Messages API to this domain's
// llm.Provider contract. Grounded on the teacher's internal/llm/anthropic
// client (option construction, model defaulting, trace-span/log wrapping)
// narrowed to a single non-streaming call per extraction/summarization
// request.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

const defaultMaxTokens int64 = 1024

// Client implements llm.Provider against the Anthropic Messages API.
type Client struct {
	sdk   anthropicsdk.Client
	model string
}

// Config is the subset of config.LLMProviderConfig this client needs.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}

	return &Client{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Extract(ctx context.Context, transcriptChunk string, profile llm.AgentProfile) ([]llm.ExtractedMemory, error) {
	prompt := extractionPrompt(transcriptChunk, profile)
	return llm.WithSchemaRetry(ctx, c.rawComplete, prompt)
}

func (c *Client) SummarizeFirstMessage(ctx context.Context, profile llm.AgentProfile, recentMemories []domain.Memory) (string, error) {
	prompt := summarizationPrompt(profile, recentMemories)
	return c.rawComplete(ctx, prompt)
}

func (c *Client) rawComplete(ctx context.Context, prompt string) (string, error) {
	log := observability.LoggerWithTrace(ctx)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_extract_error")
		return "", classify(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("anthropic_extract_ok")
	return out.String(), nil
}

// classify maps SDK-level transport errors onto apperr kinds the job
// scheduler's retry policy understands.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return apperr.Wrap(apperr.UpstreamRateLimited, "anthropic rate limited", err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return apperr.Wrap(apperr.DeadlineExceeded, "anthropic call timed out", err)
	case strings.Contains(msg, "50"):
		return apperr.Wrap(apperr.UpstreamUnavailable, "anthropic server error", err)
	default:
		return apperr.Wrap(apperr.UpstreamUnavailable, "anthropic call failed", err)
	}
}

func extractionPrompt(chunk string, profile llm.AgentProfile) string {
	return fmt.Sprintf(`You extract durable memories about a caller from a voice-agent transcript chunk.
Agent persona: %s
Extraction guidance: %s

Return JSON only, matching: {"memories":[{"content":string,"type":"factual"|"preference"|"issue"|"emotion"|"relationship","importance":1-10,"source_quote":string}]}

Transcript chunk:
%s`, profile.Persona, profile.ExtractionGuidance, chunk)
}

func summarizationPrompt(profile llm.AgentProfile, recent []domain.Memory) string {
	var b strings.Builder
	b.WriteString("Write a one or two sentence greeting-context summary for a voice agent about to speak with a returning caller.\n")
	b.WriteString("Agent persona: " + profile.Persona + "\n")
	b.WriteString("Known memories:\n")
	for _, m := range recent {
		fmt.Fprintf(&b, "- %s\n", m.Content)
	}
	return b.String()
}
