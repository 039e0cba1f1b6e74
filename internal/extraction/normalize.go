package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
)

// DefaultConfidence is assigned to a candidate when the model omits one,
// per spec.md §4.5 stage 3.
const DefaultConfidence = 0.7

// Candidate is a normalized, content-hashed memory awaiting dedup.
type Candidate struct {
	Memory       domain.Memory
	SourceQuotes []string
}

// Normalize lowercases and collapses whitespace in raw.Content, computes
// its content hash, and validates it against the hard constraints of
// stage 3: empty content, content exceeding domain.MaxContentLength, or an
// unrecognized type are all dropped (ok=false). Importance is clamped into
// [1,10]; confidence is preserved from raw when the model supplied one and
// only falls back to DefaultConfidence when omitted.
func Normalize(raw llm.ExtractedMemory, base domain.Memory) (Candidate, bool) {
	normalized := collapseWhitespace(strings.ToLower(strings.TrimSpace(raw.Content)))
	if normalized == "" {
		return Candidate{}, false
	}
	if len(raw.Content) > domain.MaxContentLength {
		return Candidate{}, false
	}
	if !domain.ValidMemoryType(raw.Type) {
		return Candidate{}, false
	}

	m := base
	m.Content = strings.TrimSpace(raw.Content)
	m.Type = raw.Type
	m.Importance = domain.ClampImportance(raw.Importance)
	m.Confidence = raw.Confidence
	if m.Confidence == 0 {
		m.Confidence = DefaultConfidence
	}
	m.ContentHash = contentHash(normalized)

	quotes := []string(nil)
	if raw.SourceQuote != "" {
		quotes = []string{raw.SourceQuote}
	}
	return Candidate{Memory: m, SourceQuotes: quotes}, true
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func contentHash(normalizedContent string) string {
	sum := sha256.Sum256([]byte(normalizedContent))
	return hex.EncodeToString(sum[:])
}
