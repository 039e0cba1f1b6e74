package extraction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/analytics"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
)

// JobPayload is what a post_call_transcription webhook enqueues onto the
// Job Scheduler (C8). It is fully JSON-tagged since a process restart
// reloads anything still queued from disk as generic JSON rather than
// this concrete Go type.
type JobPayload struct {
	ConversationID  string        `json:"conversation_id"`
	AgentID         string        `json:"agent_id"`
	CallerID        string        `json:"caller_id"`
	OrganizationID  string        `json:"organization_id"`
	Transcript      []domain.Turn `json:"transcript"`
	StartedAt       time.Time     `json:"started_at"`
	DurationSeconds int           `json:"duration_seconds"`
}

// NewJobHandler adapts a Pipeline into the jobs.Handler the Job Scheduler
// drives: decode the payload, resolve the agent's profile, run the
// pipeline, and record the resulting extraction_state.json for the
// recovery sweep to inspect. sink may be nil (analytics disabled).
func NewJobHandler(pipeline *Pipeline, relational memorystore.RelationalStore, archive *payloadstore.Archive, sink *analytics.Sink) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		startedAt := time.Now()
		payload, err := decodeJobPayload(job.Payload)
		if err != nil {
			return apperr.Wrap(apperr.PayloadSchema, "malformed extraction job payload", err)
		}

		profile := llm.AgentProfile{AgentID: payload.AgentID, OrganizationID: payload.OrganizationID}
		if relational != nil {
			if agent, ok, agentErr := relational.GetAgent(ctx, payload.AgentID); agentErr == nil && ok {
				profile = AgentProfileFrom(agent)
			}
		}

		conv := domain.Conversation{
			ConversationID: payload.ConversationID,
			AgentID:        payload.AgentID,
			CallerID:       payload.CallerID,
			OrganizationID: payload.OrganizationID,
			Transcript:     payload.Transcript,
		}

		if archive != nil {
			_ = archive.SaveExtractionState(ctx, payloadstore.ExtractionState{
				ConversationID: payload.ConversationID,
				Status:         payloadstore.StatusRunning,
				Queued:         "immediate",
				Attempts:       job.Attempt,
			})
		}

		result, runErr := pipeline.Run(ctx, conv, profile, time.Now())

		if archive != nil {
			state := payloadstore.ExtractionState{ConversationID: payload.ConversationID, Attempts: job.Attempt, Queued: "immediate"}
			switch {
			case runErr != nil:
				state.Status = payloadstore.StatusFailed
				state.LastError = runErr.Error()
			case result.Outcome == JobFailed:
				state.Status = payloadstore.StatusFailed
			case result.Outcome == JobPartial:
				state.Status = payloadstore.StatusPartial
			default:
				state.Status = payloadstore.StatusSucceeded
			}
			_ = archive.SaveExtractionState(ctx, state)
		}

		outcome := string(result.Outcome)
		if runErr != nil {
			outcome = string(JobFailed)
		}
		sink.RecordExtractionOutcome(ctx, payload.ConversationID, payload.AgentID, payload.OrganizationID, outcome, time.Since(startedAt))

		return runErr
	}
}

// AgentProfileFrom projects a domain.Agent's loosely-typed profile map
// into the llm.AgentProfile shape the LLM Adapter expects.
func AgentProfileFrom(agent domain.Agent) llm.AgentProfile {
	profile := llm.AgentProfile{AgentID: agent.AgentID, OrganizationID: agent.OrganizationID}
	if agent.Profile == nil {
		return profile
	}
	if v, ok := agent.Profile["persona"].(string); ok {
		profile.Persona = v
	}
	if v, ok := agent.Profile["extraction_guidance"].(string); ok {
		profile.ExtractionGuidance = v
	}
	if v, ok := agent.Profile["preferred_model"].(string); ok {
		profile.PreferredModel = v
	}
	return profile
}

// decodeJobPayload accepts either the typed JobPayload an in-process
// Enqueue passes directly, or the map[string]any a restart-reloaded
// persisted job decodes to, by round-tripping through JSON either way.
func decodeJobPayload(payload any) (JobPayload, error) {
	if p, ok := payload.(JobPayload); ok {
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return JobPayload{}, err
	}
	var p JobPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return JobPayload{}, err
	}
	return p, nil
}
