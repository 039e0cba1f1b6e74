package memorystore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// pgRelationalStore implements RelationalStore against Postgres. Grounded
// on the teacher's internal/persistence/databases.pgSearch (best-effort
// CREATE TABLE IF NOT EXISTS bootstrap on construction, ON CONFLICT
// upsert pattern).
type pgRelationalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRelationalStore connects pool and bootstraps the schema.
func NewPostgresRelationalStore(pool *pgxpool.Pool) RelationalStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS callers (
  caller_id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  first_seen TIMESTAMPTZ NOT NULL,
  last_seen TIMESTAMPTZ NOT NULL,
  conversation_count INT NOT NULL DEFAULT 0
)`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
  conversation_id TEXT PRIMARY KEY,
  agent_id TEXT NOT NULL,
  caller_id TEXT NOT NULL DEFAULT '',
  organization_id TEXT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  ended_at TIMESTAMPTZ,
  duration_seconds INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  transcript JSONB NOT NULL DEFAULT '[]'::jsonb
)`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS organizations (
  organization_id TEXT PRIMARY KEY,
  hmac_secret BYTEA NOT NULL,
  llm_provider_preference TEXT NOT NULL DEFAULT 'auto',
  privacy_rules JSONB NOT NULL DEFAULT '{}'::jsonb,
  share_threshold INT NOT NULL DEFAULT 8,
  similarity_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.85
)`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agents (
  agent_id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  profile JSONB NOT NULL DEFAULT '{}'::jsonb,
  profile_fetched_at TIMESTAMPTZ
)`)
	return &pgRelationalStore{pool: pool}
}

func (s *pgRelationalStore) GetCaller(ctx context.Context, callerID string) (domain.Caller, bool, error) {
	var c domain.Caller
	err := s.pool.QueryRow(ctx, `SELECT caller_id, organization_id, first_seen, last_seen, conversation_count FROM callers WHERE caller_id=$1`, callerID).
		Scan(&c.CallerID, &c.OrganizationID, &c.FirstSeen, &c.LastSeen, &c.ConversationCount)
	if err == pgx.ErrNoRows {
		return domain.Caller{}, false, nil
	}
	if err != nil {
		return domain.Caller{}, false, err
	}
	return c, true, nil
}

func (s *pgRelationalStore) UpsertCaller(ctx context.Context, c domain.Caller) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO callers(caller_id, organization_id, first_seen, last_seen, conversation_count)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (caller_id) DO UPDATE SET
  last_seen=EXCLUDED.last_seen,
  conversation_count=EXCLUDED.conversation_count
`, c.CallerID, c.OrganizationID, c.FirstSeen, c.LastSeen, c.ConversationCount)
	return err
}

func (s *pgRelationalStore) DeleteCaller(ctx context.Context, callerID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM callers WHERE caller_id=$1`, callerID)
	return err
}

func (s *pgRelationalStore) GetConversation(ctx context.Context, conversationID string) (domain.Conversation, bool, error) {
	var conv domain.Conversation
	var transcriptJSON []byte
	var endedAt *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT conversation_id, agent_id, caller_id, organization_id, started_at, ended_at, duration_seconds, status, transcript
FROM conversations WHERE conversation_id=$1`, conversationID).
		Scan(&conv.ConversationID, &conv.AgentID, &conv.CallerID, &conv.OrganizationID, &conv.StartedAt, &endedAt, &conv.DurationSeconds, &conv.Status, &transcriptJSON)
	if err == pgx.ErrNoRows {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if endedAt != nil {
		conv.EndedAt = *endedAt
	}
	if len(transcriptJSON) > 0 {
		_ = json.Unmarshal(transcriptJSON, &conv.Transcript)
	}
	return conv, true, nil
}

func (s *pgRelationalStore) UpsertConversation(ctx context.Context, conv domain.Conversation) error {
	transcriptJSON, err := json.Marshal(conv.Transcript)
	if err != nil {
		return err
	}
	var endedAt *time.Time
	if !conv.EndedAt.IsZero() {
		endedAt = &conv.EndedAt
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO conversations(conversation_id, agent_id, caller_id, organization_id, started_at, ended_at, duration_seconds, status, transcript)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (conversation_id) DO UPDATE SET
  ended_at=EXCLUDED.ended_at,
  duration_seconds=EXCLUDED.duration_seconds,
  status=EXCLUDED.status,
  transcript=EXCLUDED.transcript
`, conv.ConversationID, conv.AgentID, conv.CallerID, conv.OrganizationID, conv.StartedAt, endedAt, conv.DurationSeconds, conv.Status, transcriptJSON)
	return err
}

func (s *pgRelationalStore) GetOrganization(ctx context.Context, organizationID string) (domain.Organization, bool, error) {
	var o domain.Organization
	var privacyJSON []byte
	err := s.pool.QueryRow(ctx, `
SELECT organization_id, hmac_secret, llm_provider_preference, privacy_rules, share_threshold, similarity_threshold
FROM organizations WHERE organization_id=$1`, organizationID).
		Scan(&o.OrganizationID, &o.HMACSecret, &o.LLMProviderPreference, &privacyJSON, &o.ShareThreshold, &o.SimilarityThreshold)
	if err == pgx.ErrNoRows {
		return domain.Organization{}, false, nil
	}
	if err != nil {
		return domain.Organization{}, false, err
	}
	if len(privacyJSON) > 0 {
		_ = json.Unmarshal(privacyJSON, &o.PrivacyRules)
	}
	return o, true, nil
}

func (s *pgRelationalStore) GetAgent(ctx context.Context, agentID string) (domain.Agent, bool, error) {
	var a domain.Agent
	var profileJSON []byte
	var fetchedAt *time.Time
	err := s.pool.QueryRow(ctx, `SELECT agent_id, organization_id, profile, profile_fetched_at FROM agents WHERE agent_id=$1`, agentID).
		Scan(&a.AgentID, &a.OrganizationID, &profileJSON, &fetchedAt)
	if err == pgx.ErrNoRows {
		return domain.Agent{}, false, nil
	}
	if err != nil {
		return domain.Agent{}, false, err
	}
	if len(profileJSON) > 0 {
		_ = json.Unmarshal(profileJSON, &a.Profile)
	}
	if fetchedAt != nil {
		a.ProfileFetchedAt = *fetchedAt
	}
	return a, true, nil
}

func (s *pgRelationalStore) Close() error {
	s.pool.Close()
	return nil
}
