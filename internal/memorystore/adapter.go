package memorystore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// vectorAdapter implements Adapter over a VectorStore + Embedder pair.
// Every domain.Memory field round-trips through the vector backend's
// string-keyed payload; Reinforce/MarkShareable read the current payload,
// mutate it, re-embed the stored content, and re-upsert rather than
// relying on any partial-update API
// the backend might not support (the teacher's VectorStore contract only
// exposes Upsert/Delete/Search).
type vectorAdapter struct {
	vectors  VectorStore
	embedder Embedder
}

// NewAdapter builds an Adapter over vectors and embedder.
func NewAdapter(vectors VectorStore, embedder Embedder) Adapter {
	return &vectorAdapter{vectors: vectors, embedder: embedder}
}

const (
	fieldMemoryID           = "memory_id"
	fieldCallerID           = "caller_id"
	fieldConversationID     = "conversation_id"
	fieldAgentID            = "agent_id"
	fieldOrganizationID     = "organization_id"
	fieldContent            = "content"
	fieldType               = "type"
	fieldImportance         = "importance"
	fieldShareable          = "shareable"
	fieldCreatedAt          = "created_at"
	fieldLastReinforcedAt   = "last_reinforced_at"
	fieldReinforcementCount = "reinforcement_count"
	fieldConfidence         = "confidence"
	fieldContentHash        = "content_hash"
	fieldProvenance         = "provenance_conversation_ids"
	metadataPrefix          = "meta_"
)

func (a *vectorAdapter) Store(ctx context.Context, m domain.Memory) (string, error) {
	if m.MemoryID == "" {
		m.MemoryID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	vectors, err := a.embedder.Embed(ctx, []string{m.Content})
	if err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "embed memory content", err)
	}
	payload := toPayload(m)
	payload[fieldProvenance] = m.ConversationID
	if err := a.vectors.Upsert(ctx, m.MemoryID, vectors[0], payload); err != nil {
		return "", apperr.Wrap(apperr.StoreUnavailable, "upsert memory", err)
	}
	return m.MemoryID, nil
}

func (a *vectorAdapter) SemanticSearch(ctx context.Context, scope Scope, q ScopedQuery, queryText string, limit int, minScore float64, filters SearchFilters) ([]Scored, error) {
	vectors, err := a.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "embed query", err)
	}
	backendFilter := scopeFilter(scope, q)
	hits, err := a.vectors.SimilaritySearch(ctx, vectors[0], limit*3+limit, backendFilter)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "similarity search", err)
	}

	out := make([]Scored, 0, limit)
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		m := fromPayload(h.ID, h.Metadata)
		if !matchesFilters(m, filters) {
			continue
		}
		out = append(out, Scored{Memory: m, Score: h.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *vectorAdapter) BatchFindSimilar(ctx context.Context, q ScopedQuery, texts []string, threshold float64) ([]SimilarHit, error) {
	vectors, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "embed batch", err)
	}
	backendFilter := scopeFilter(ScopeCallerOnly, q)
	batches, err := a.vectors.BatchSimilaritySearch(ctx, vectors, backendFilter)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "batch similarity search", err)
	}

	out := make([]SimilarHit, len(texts))
	for i, hits := range batches {
		if len(hits) == 0 || hits[0].Score < threshold {
			out[i] = SimilarHit{Found: false}
			continue
		}
		out[i] = SimilarHit{Memory: fromPayload(hits[0].ID, hits[0].Metadata), Score: hits[0].Score, Found: true}
	}
	return out, nil
}

func (a *vectorAdapter) Recent(ctx context.Context, scope Scope, q ScopedQuery, limit int) ([]domain.Memory, error) {
	// No backend in the VectorStore contract ranks by recency, so this
	// reuses the same zero-vector broad-listing trick as DeleteByCaller,
	// then sorts client-side.
	zero := make([]float32, a.vectors.Dimension())
	hits, err := a.vectors.SimilaritySearch(ctx, zero, 10000, scopeFilter(scope, q))
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "list recent memories", err)
	}
	memories := make([]domain.Memory, 0, len(hits))
	for _, h := range hits {
		memories = append(memories, fromPayload(h.ID, h.Metadata))
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].CreatedAt.After(memories[j].CreatedAt) })
	if len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

func (a *vectorAdapter) Reinforce(ctx context.Context, memoryID string, newConversationID string, now time.Time) error {
	existing, metadata, vector, err := a.fetchByID(ctx, memoryID)
	if err != nil {
		return err
	}
	existing.ReinforcementCount++
	existing.LastReinforcedAt = now
	if existing.Confidence < 1.0 {
		existing.Confidence = minFloat(existing.Confidence+0.05, 1.0)
	}
	payload := toPayload(existing)
	payload[fieldProvenance] = appendProvenance(metadata[fieldProvenance], newConversationID)
	return a.vectors.Upsert(ctx, memoryID, vector, payload)
}

func (a *vectorAdapter) MarkShareable(ctx context.Context, memoryID string, shareable bool) error {
	existing, metadata, vector, err := a.fetchByID(ctx, memoryID)
	if err != nil {
		return err
	}
	existing.Shareable = shareable
	payload := toPayload(existing)
	payload[fieldProvenance] = metadata[fieldProvenance]
	return a.vectors.Upsert(ctx, memoryID, vector, payload)
}

func (a *vectorAdapter) TagConflict(ctx context.Context, memoryID string, groupID string) error {
	existing, metadata, vector, err := a.fetchByID(ctx, memoryID)
	if err != nil {
		return err
	}
	if existing.Metadata == nil {
		existing.Metadata = make(map[string]string)
	}
	existing.Metadata["conflict_group_id"] = groupID
	payload := toPayload(existing)
	payload[fieldProvenance] = metadata[fieldProvenance]
	return a.vectors.Upsert(ctx, memoryID, vector, payload)
}

func (a *vectorAdapter) DeleteByCaller(ctx context.Context, callerID string) error {
	// The generic VectorStore contract has no "delete by filter" primitive,
	// so erasure is a scan-then-delete: list every memory for this caller
	// via a broad similarity search, then delete each point by id.
	zero := make([]float32, a.vectors.Dimension())
	hits, err := a.vectors.SimilaritySearch(ctx, zero, 10000, map[string]string{fieldCallerID: callerID})
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "list memories for erasure", err)
	}
	for _, h := range hits {
		if err := a.vectors.Delete(ctx, h.ID); err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, fmt.Sprintf("delete memory %s", h.ID), err)
		}
	}
	return nil
}

func (a *vectorAdapter) Close() error { return a.vectors.Close() }

func (a *vectorAdapter) fetchByID(ctx context.Context, memoryID string) (domain.Memory, map[string]string, []float32, error) {
	zero := make([]float32, a.vectors.Dimension())
	hits, err := a.vectors.SimilaritySearch(ctx, zero, 1, map[string]string{fieldMemoryID: memoryID})
	if err != nil {
		return domain.Memory{}, nil, nil, apperr.Wrap(apperr.StoreUnavailable, "lookup memory", err)
	}
	if len(hits) == 0 {
		return domain.Memory{}, nil, nil, apperr.New(apperr.StoreConflict, "memory not found: "+memoryID)
	}
	m := fromPayload(hits[0].ID, hits[0].Metadata)
	vectors, err := a.embedder.Embed(ctx, []string{m.Content})
	if err != nil {
		return domain.Memory{}, nil, nil, apperr.Wrap(apperr.StoreUnavailable, "embed memory content", err)
	}
	return m, hits[0].Metadata, vectors[0], nil
}

func scopeFilter(scope Scope, q ScopedQuery) map[string]string {
	filter := map[string]string{fieldCallerID: q.CallerID, fieldOrganizationID: q.OrganizationID}
	switch scope {
	case ScopeCallerAndAgent:
		filter[fieldAgentID] = q.AgentID
	case ScopeCallerAndOrgShareable:
		filter[fieldShareable] = "true"
	}
	return filter
}

func matchesFilters(m domain.Memory, f SearchFilters) bool {
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.MinImportance > 0 && m.Importance < f.MinImportance {
		return false
	}
	if f.MaxImportance > 0 && m.Importance > f.MaxImportance {
		return false
	}
	if !f.After.IsZero() && m.CreatedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && m.CreatedAt.After(f.Before) {
		return false
	}
	return true
}

func toPayload(m domain.Memory) map[string]string {
	p := map[string]string{
		fieldMemoryID:           m.MemoryID,
		fieldCallerID:           m.CallerID,
		fieldConversationID:     m.ConversationID,
		fieldAgentID:            m.AgentID,
		fieldOrganizationID:     m.OrganizationID,
		fieldContent:            m.Content,
		fieldType:               string(m.Type),
		fieldImportance:         strconv.Itoa(m.Importance),
		fieldShareable:          strconv.FormatBool(m.Shareable),
		fieldCreatedAt:          m.CreatedAt.UTC().Format(time.RFC3339),
		fieldLastReinforcedAt:   m.LastReinforcedAt.UTC().Format(time.RFC3339),
		fieldReinforcementCount: strconv.Itoa(m.ReinforcementCount),
		fieldConfidence:         strconv.FormatFloat(m.Confidence, 'f', -1, 64),
		fieldContentHash:        m.ContentHash,
	}
	for k, v := range m.Metadata {
		p[metadataPrefix+k] = v
	}
	return p
}

func fromPayload(id string, p map[string]string) domain.Memory {
	m := domain.Memory{
		MemoryID:       id,
		CallerID:       p[fieldCallerID],
		ConversationID: p[fieldConversationID],
		AgentID:        p[fieldAgentID],
		OrganizationID: p[fieldOrganizationID],
		Content:        p[fieldContent],
		Type:           domain.MemoryType(p[fieldType]),
		ContentHash:    p[fieldContentHash],
	}
	m.Importance, _ = strconv.Atoi(p[fieldImportance])
	m.Shareable = p[fieldShareable] == "true"
	m.CreatedAt, _ = time.Parse(time.RFC3339, p[fieldCreatedAt])
	m.LastReinforcedAt, _ = time.Parse(time.RFC3339, p[fieldLastReinforcedAt])
	m.ReinforcementCount, _ = strconv.Atoi(p[fieldReinforcementCount])
	m.Confidence, _ = strconv.ParseFloat(p[fieldConfidence], 64)

	meta := make(map[string]string)
	for k, v := range p {
		if strings.HasPrefix(k, metadataPrefix) {
			meta[strings.TrimPrefix(k, metadataPrefix)] = v
		}
	}
	if len(meta) > 0 {
		m.Metadata = meta
	}
	return m
}

func appendProvenance(existing, conversationID string) string {
	if existing == "" {
		return conversationID
	}
	for _, id := range strings.Split(existing, ",") {
		if id == conversationID {
			return existing
		}
	}
	return existing + "," + conversationID
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
