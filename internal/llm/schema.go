package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// ExtractionSchema is the JSON schema of the extraction output that
// ParseExtractionOutput checks. The provider clients do not send it to
// their APIs; each extraction prompt spells out the same shape as text.
// Kept as a map literal rather than a struct tag walk.
var ExtractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"memories": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content":      map[string]any{"type": "string"},
					"type":         map[string]any{"type": "string", "enum": []string{"factual", "preference", "issue", "emotion", "relationship"}},
					"importance":   map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
					"confidence":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
					"source_quote": map[string]any{"type": "string"},
				},
				"required": []string{"content", "type", "importance"},
			},
		},
	},
	"required": []string{"memories"},
}

type extractionEnvelope struct {
	Memories []ExtractedMemory `json:"memories"`
}

// ParseExtractionOutput validates raw against the shape ExtractionSchema
// describes and returns the decoded memories. Malformed JSON, empty
// content, an unknown MemoryType, or a confidence outside [0,1] count as
// schema violations; an importance outside [1,10] is clamped into range.
func ParseExtractionOutput(raw string) ([]ExtractedMemory, error) {
	var env extractionEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, apperr.Wrap(apperr.InvalidLLMOutput, "extraction output is not valid JSON", err)
	}
	for i, m := range env.Memories {
		if m.Content == "" {
			return nil, apperr.New(apperr.InvalidLLMOutput, "extraction output has empty content")
		}
		if !domain.ValidMemoryType(m.Type) {
			return nil, apperr.New(apperr.InvalidLLMOutput, fmt.Sprintf("extraction output has invalid type %q", m.Type))
		}
		env.Memories[i].Importance = domain.ClampImportance(m.Importance)
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, apperr.New(apperr.InvalidLLMOutput, fmt.Sprintf("extraction output has out-of-range confidence %v", m.Confidence))
		}
	}
	return env.Memories, nil
}

// ExtractorFunc is the single raw-text call a provider client exposes;
// WithSchemaRetry wraps it with the one-reprompt-on-violation policy so
// each client implements Extract by calling this helper instead of
// duplicating the retry loop.
type ExtractorFunc func(ctx context.Context, prompt string) (string, error)

// WithSchemaRetry calls raw, parses the result against ExtractionSchema,
// and on a schema violation re-prompts exactly once with an added
// correction notice before giving up.
func WithSchemaRetry(ctx context.Context, raw ExtractorFunc, prompt string) ([]ExtractedMemory, error) {
	out, err := raw(ctx, prompt)
	if err != nil {
		return nil, err
	}
	memories, parseErr := ParseExtractionOutput(out)
	if parseErr == nil {
		return memories, nil
	}

	correction := prompt + "\n\nYour previous response did not match the required JSON schema: " + parseErr.Error() + "\nRespond again with valid JSON only."
	out, err = raw(ctx, correction)
	if err != nil {
		return nil, err
	}
	memories, parseErr = ParseExtractionOutput(out)
	if parseErr != nil {
		return nil, parseErr
	}
	return memories, nil
}
