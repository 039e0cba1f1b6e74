// Package analytics records extraction-job outcomes and search latencies to
// ClickHouse for offline analysis, mirroring the teacher's
// internal/agentd ClickHouse-backed metrics tables (metrics_clickhouse.go,
// traces_clickhouse.go) adapted from LLM token/trace metrics to this
// domain's job-outcome and search-latency events.
package analytics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// Sink records operational events. A nil *Sink is valid and every method
// is then a no-op, the same nil-receiver-safe idiom the teacher's Kafka
// publisher uses for an optionally-disabled sink.
type Sink struct {
	conn clickhouse.Conn
}

const extractionOutcomesDDL = `
CREATE TABLE IF NOT EXISTS extraction_job_outcomes (
	conversation_id String,
	agent_id String,
	organization_id String,
	outcome String,
	duration_ms UInt32,
	recorded_at DateTime
) ENGINE = MergeTree ORDER BY recorded_at
`

const searchLatenciesDDL = `
CREATE TABLE IF NOT EXISTS search_latencies (
	caller_id String,
	agent_id String,
	organization_id String,
	duration_ms UInt32,
	result_count UInt16,
	recorded_at DateTime
) ENGINE = MergeTree ORDER BY recorded_at
`

// New opens a ClickHouse connection per cfg and ensures its two tables
// exist. A disabled config (the default) returns a nil *Sink.
func New(ctx context.Context, cfg config.ClickHouseConfig) (*Sink, error) {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil, nil
	}
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, extractionOutcomesDDL); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, searchLatenciesDDL); err != nil {
		return nil, err
	}
	return &Sink{conn: conn}, nil
}

// RecordExtractionOutcome appends one row per completed extraction job.
// Failures are logged and swallowed: analytics must never fail a job.
func (s *Sink) RecordExtractionOutcome(ctx context.Context, conversationID, agentID, organizationID, outcome string, duration time.Duration) {
	if s == nil {
		return
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO extraction_job_outcomes (conversation_id, agent_id, organization_id, outcome, duration_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conversationID, agentID, organizationID, outcome, uint32(duration.Milliseconds()), time.Now())
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("analytics_record_extraction_outcome_failed")
	}
}

// RecordSearchLatency appends one row per in_call_search request.
func (s *Sink) RecordSearchLatency(ctx context.Context, callerID, agentID, organizationID string, duration time.Duration, resultCount int) {
	if s == nil {
		return
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO search_latencies (caller_id, agent_id, organization_id, duration_ms, result_count, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		callerID, agentID, organizationID, uint32(duration.Milliseconds()), uint16(resultCount), time.Now())
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("analytics_record_search_latency_failed")
	}
}

// Close releases the underlying ClickHouse connection.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.conn.Close()
}
