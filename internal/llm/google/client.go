// Package google adapts the Gemini API (google.golang.org/genai) to this
// domain's llm.Provider contract. Grounded on the teacher's
// internal/llm/google client construction, narrowed to single-turn
// text generation for extraction/summarization.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// Client implements llm.Provider against the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Config is the subset of config.LLMProviderConfig this client needs.
type Config struct {
	APIKey string
	Model  string
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
func New(ctx context.Context, cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

func (c *Client) Name() string { return "google" }

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

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("google_extract_error")
		return "", classify(err)
	}

	log.Debug().Str("model", c.model).Dur("duration", dur).Msg("google_extract_ok")
	return resp.Text(), nil
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return apperr.Wrap(apperr.UpstreamRateLimited, "google rate limited", err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return apperr.Wrap(apperr.DeadlineExceeded, "google call timed out", err)
	case strings.Contains(msg, "50"):
		return apperr.Wrap(apperr.UpstreamUnavailable, "google server error", err)
	default:
		return apperr.Wrap(apperr.UpstreamUnavailable, "google call failed", err)
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
