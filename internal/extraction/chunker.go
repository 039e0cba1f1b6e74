// Package extraction implements the Extraction Pipeline (C5): the
// transcript-chunking, multi-pass LLM extraction, intra-batch and
// store-side dedup, and per-caller-locked commit stages that turn a
// completed Conversation into a canonical set of Memory rows. Grounded
// on the teacher's internal/rag/chunker (turn/line-boundary chunking) and
// internal/util.CountTokens (word-plus-punctuation token estimate).
package extraction

import (
	"unicode"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// DefaultChunkTokens is the default CHUNK_TOKENS budget per spec.md §4.5.
const DefaultChunkTokens = 8000

// CountTokens estimates a token count for s by counting words and
// punctuation marks separately, the same rough heuristic the rest of the
// codebase's ingestion path uses to budget LLM context windows.
func CountTokens(s string) int {
	inWord := false
	count := 0
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if inWord {
				count++
				inWord = false
			}
		case unicode.IsPunct(r):
			if inWord {
				count++
				inWord = false
			}
			count++
		default:
			inWord = true
		}
	}
	if inWord {
		count++
	}
	return count
}

// Chunk is a contiguous, turn-boundary-respecting slice of a transcript.
type Chunk struct {
	Index int
	Turns []domain.Turn
}

// ChunkTranscript splits turns into contiguous windows of at most
// maxTokens, never splitting a turn across two chunks. A single turn that
// alone exceeds maxTokens still becomes its own chunk (the cap is a
// packing target, not a hard per-turn limit).
func ChunkTranscript(turns []domain.Turn, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	var chunks []Chunk
	var current []domain.Turn
	tokens := 0
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Turns: current})
		current = nil
		tokens = 0
	}
	for _, t := range turns {
		n := CountTokens(t.Text)
		if tokens > 0 && tokens+n > maxTokens {
			flush()
		}
		current = append(current, t)
		tokens += n
	}
	flush()
	return chunks
}

// Render joins a chunk's turns into the flat transcript text the LLM
// Adapter's Extract operation expects.
func (c Chunk) Render() string {
	var out []byte
	for i, t := range c.Turns {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, t.Role...)
		out = append(out, ':', ' ')
		out = append(out, t.Text...)
	}
	return string(out)
}
