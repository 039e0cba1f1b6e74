package extraction

import (
	"context"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
)

// CollapseIntraBatch implements stage 4: candidates sharing a content hash
// collapse into one, keeping the highest importance and merging source
// quotes.
func CollapseIntraBatch(candidates []Candidate) []Candidate {
	order := make([]string, 0, len(candidates))
	byHash := make(map[string]*Candidate, len(candidates))
	for _, c := range candidates {
		existing, ok := byHash[c.Memory.ContentHash]
		if !ok {
			cp := c
			byHash[c.Memory.ContentHash] = &cp
			order = append(order, c.Memory.ContentHash)
			continue
		}
		if c.Memory.Importance > existing.Memory.Importance {
			existing.Memory.Importance = c.Memory.Importance
		}
		existing.SourceQuotes = append(existing.SourceQuotes, c.SourceQuotes...)
	}
	out := make([]Candidate, 0, len(order))
	for _, h := range order {
		out = append(out, *byHash[h])
	}
	return out
}

// Outcome classifies how a single candidate was resolved against the
// store, per stage 6's decision tree.
type Outcome string

const (
	OutcomeReinforcedDuplicate Outcome = "reinforced_duplicate"
	OutcomeReinforcedSemantic  Outcome = "reinforced_semantic"
	OutcomeStoredConflict      Outcome = "stored_conflict"
	OutcomeStoredNew           Outcome = "stored_new"
)

// Decision is the resolved fate of one candidate after store-side dedup.
type Decision struct {
	Candidate Candidate
	Outcome   Outcome
	MemoryID  string
}

// thresholds bundles the organization-tunable knobs stage 6 needs.
type thresholds struct {
	Similarity float64
	Conflict   float64
	Share      int
}

// ResolveAndCommit runs stages 5-6 for one batch of candidates already
// scoped to a single caller: a single batch_find_similar round trip,
// followed by a per-candidate reinforce-vs-store decision. Callers MUST
// hold the per-caller lock (see lock.go) for the full duration of this
// call, per stage 7.
func ResolveAndCommit(ctx context.Context, store memorystore.Adapter, q memorystore.ScopedQuery, candidates []Candidate, th thresholds, now time.Time) ([]Decision, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Memory.Content
	}
	hits, err := store.BatchFindSimilar(ctx, q, texts, th.Similarity)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, len(candidates))
	for i, c := range candidates {
		d, err := decideOne(ctx, store, c, hits[i], th, now)
		if err != nil {
			return nil, err
		}
		decisions[i] = d
	}
	return decisions, nil
}

func decideOne(ctx context.Context, store memorystore.Adapter, c Candidate, hit memorystore.SimilarHit, th thresholds, now time.Time) (Decision, error) {
	switch {
	case hit.Found && hit.Memory.ContentHash == c.Memory.ContentHash:
		if err := store.Reinforce(ctx, hit.Memory.MemoryID, c.Memory.ConversationID, now); err != nil {
			return Decision{}, err
		}
		return Decision{Candidate: c, Outcome: OutcomeReinforcedDuplicate, MemoryID: hit.Memory.MemoryID}, nil

	case hit.Found && hit.Score >= th.Similarity:
		if err := store.Reinforce(ctx, hit.Memory.MemoryID, c.Memory.ConversationID, now); err != nil {
			return Decision{}, err
		}
		if c.Memory.Importance > hit.Memory.Importance {
			hit.Memory.Importance = c.Memory.Importance
			hit.Memory.RecomputeShareable(th.Share)
			if err := store.MarkShareable(ctx, hit.Memory.MemoryID, hit.Memory.Shareable); err != nil {
				return Decision{}, err
			}
		}
		return Decision{Candidate: c, Outcome: OutcomeReinforcedSemantic, MemoryID: hit.Memory.MemoryID}, nil

	case hit.Found && hit.Score >= th.Conflict && isConflictType(c.Memory.Type) && hit.Memory.Content != c.Memory.Content:
		groupID := conflictGroupID(hit.Memory, c.Memory)
		c.Memory.RecomputeShareable(th.Share)
		if c.Memory.Metadata == nil {
			c.Memory.Metadata = make(map[string]string)
		}
		c.Memory.Metadata["conflict_group_id"] = groupID
		id, err := store.Store(ctx, c.Memory)
		if err != nil {
			return Decision{}, err
		}
		if err := store.TagConflict(ctx, hit.Memory.MemoryID, groupID); err != nil {
			return Decision{}, err
		}
		return Decision{Candidate: c, Outcome: OutcomeStoredConflict, MemoryID: id}, nil

	default:
		c.Memory.RecomputeShareable(th.Share)
		id, err := store.Store(ctx, c.Memory)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Candidate: c, Outcome: OutcomeStoredNew, MemoryID: id}, nil
	}
}

func isConflictType(t domain.MemoryType) bool {
	return t == domain.MemoryFactual || t == domain.MemoryPreference
}

// conflictGroupID derives a stable identifier shared by both sides of a
// conflicting pair. Using the existing memory's id keeps the group stable
// across repeated conflicts against the same original memory.
func conflictGroupID(existing, incoming domain.Memory) string {
	if existing.MemoryID != "" {
		return "conflict-" + existing.MemoryID
	}
	return "conflict-" + incoming.ContentHash
}
