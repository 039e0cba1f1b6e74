// Package openai adapts the OpenAI chat-completions API to this domain's
// llm.Provider contract. Grounded on the teacher's internal/llm/openai
// client (SDK option wiring, model defaulting) narrowed to a single
// non-streaming completion per extraction/summarization request.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// Client implements llm.Provider against the OpenAI chat-completions API.
type Client struct {
	sdk   sdk.Client
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
		model = "gpt-4o-mini"
	}

	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "openai" }

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

	params := sdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_extract_error")
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.InvalidLLMOutput, "openai returned no choices")
	}

	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("openai_extract_ok")
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return apperr.Wrap(apperr.UpstreamRateLimited, "openai rate limited", err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return apperr.Wrap(apperr.DeadlineExceeded, "openai call timed out", err)
	case strings.Contains(msg, "50"):
		return apperr.Wrap(apperr.UpstreamUnavailable, "openai server error", err)
	default:
		return apperr.Wrap(apperr.UpstreamUnavailable, "openai call failed", err)
	}
}

func extractionPrompt(chunk string, profile llm.AgentProfile) string {
	return "You extract durable memories about a caller from a voice-agent transcript chunk.\n" +
		"Agent persona: " + profile.Persona + "\n" +
		"Extraction guidance: " + profile.ExtractionGuidance + "\n\n" +
		`Return JSON only, matching: {"memories":[{"content":string,"type":"factual"|"preference"|"issue"|"emotion"|"relationship","importance":1-10,"source_quote":string}]}` +
		"\n\nTranscript chunk:\n" + chunk
}

func summarizationPrompt(profile llm.AgentProfile, recent []domain.Memory) string {
	var b strings.Builder
	b.WriteString("Write a one or two sentence greeting-context summary for a voice agent about to speak with a returning caller.\n")
	b.WriteString("Agent persona: " + profile.Persona + "\n")
	b.WriteString("Known memories:\n")
	for _, m := range recent {
		b.WriteString("- " + m.Content + "\n")
	}
	return b.String()
}
