package extraction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
)

func TestNormalizePreservesModelSuppliedConfidence(t *testing.T) {
	raw := llm.ExtractedMemory{Content: "likes tea", Type: domain.MemoryPreference, Importance: 5, Confidence: 0.92}
	c, ok := Normalize(raw, domain.Memory{})
	require.True(t, ok)
	require.Equal(t, 0.92, c.Memory.Confidence)
}

func TestNormalizeDefaultsConfidenceWhenOmitted(t *testing.T) {
	raw := llm.ExtractedMemory{Content: "likes tea", Type: domain.MemoryPreference, Importance: 5}
	c, ok := Normalize(raw, domain.Memory{})
	require.True(t, ok)
	require.Equal(t, DefaultConfidence, c.Memory.Confidence)
}
