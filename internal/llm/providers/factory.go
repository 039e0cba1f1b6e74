// Package providers builds concrete llm.Provider backends from config and
// wires them into a primary/fallback Selector. Grounded on the teacher's
// internal/llm/providers.Build factory, extended to also build the
// fallback side.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm/anthropic"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm/google"
	openaillm "github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm/openai"
)

// Build constructs a single named provider backend.
func Build(ctx context.Context, name string, cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch name {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.Anthropic.APIKey,
			Model:   cfg.Anthropic.Model,
			BaseURL: cfg.Anthropic.BaseURL,
		}, httpClient), nil
	case "openai":
		return openaillm.New(openaillm.Config{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
		}, httpClient), nil
	case "google":
		return google.New(ctx, google.Config{
			APIKey: cfg.Google.APIKey,
			Model:  cfg.Google.Model,
		}, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
}

// BuildSelector constructs the primary provider from cfg.Provider and the
// fallback from cfg.Fallback, wiring both into a Selector.
func BuildSelector(ctx context.Context, cfg config.LLMConfig, httpClient *http.Client) (*Selector, error) {
	primary, err := Build(ctx, cfg.Provider, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build primary llm provider: %w", err)
	}

	var fallback llm.Provider
	if cfg.Fallback != "" && cfg.Fallback != cfg.Provider {
		fallback, err = Build(ctx, cfg.Fallback, cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("build fallback llm provider: %w", err)
		}
	}

	return NewSelector(primary, fallback), nil
}
