package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/apperr"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/extraction"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/search"
)

// preCallRequest is the pre_call webhook body, per spec.md §6.
type preCallRequest struct {
	AgentID          string         `json:"agent_id"`
	ConversationID   string         `json:"conversation_id"`
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

func (s *Server) handlePreCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := observability.CorrelationID(ctx)

	var req preCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed pre_call body", err))
		return
	}

	callerID, _ := req.DynamicVariables["system__caller_id"].(string)
	organizationID := s.organizationFor(ctx, req.AgentID)

	ctx = observability.WithRequestFields(ctx, observability.RequestFields{
		CorrelationID:  requestID,
		OrganizationID: organizationID,
		ConversationID: req.ConversationID,
	})

	if s.relational != nil && req.ConversationID != "" {
		_ = s.relational.UpsertConversation(ctx, domain.Conversation{
			ConversationID: req.ConversationID,
			AgentID:        req.AgentID,
			CallerID:       callerID,
			OrganizationID: organizationID,
			StartedAt:      time.Now().UTC(),
			Status:         domain.StatusInitiated,
		})
	}

	env, err := s.assembler.Assemble(ctx, callerID, req.AgentID, organizationID)
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	writeData(w, requestID, map[string]any{
		"first_message": env.FirstMessage,
		"context": map[string]any{
			"memories":              env.Memories,
			"preferences":            env.Preferences,
			"relationship_insights": env.RelationshipInsights,
			"conflicts":              env.Conflicts,
		},
	})
}

// inCallSearchRequest is the in_call_search webhook body, per spec.md §6.
type inCallSearchRequest struct {
	Query           string  `json:"query"`
	CallerID        string  `json:"caller_id"`
	AgentID         string  `json:"agent_id"`
	ConversationID  string  `json:"conversation_id"`
	SearchAllAgents bool    `json:"search_all_agents"`
	Limit           int     `json:"limit"`
	MinScore        float64 `json:"min_score"`
}

func (s *Server) handleInCallSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := observability.CorrelationID(ctx)

	var req inCallSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed in_call_search body", err))
		return
	}

	organizationID := s.organizationFor(ctx, req.AgentID)
	ctx = observability.WithRequestFields(ctx, observability.RequestFields{
		CorrelationID:  requestID,
		OrganizationID: organizationID,
		ConversationID: req.ConversationID,
	})

	resp, err := s.search.Search(ctx, search.Request{
		QueryText:       req.Query,
		CallerID:        req.CallerID,
		AgentID:         req.AgentID,
		OrganizationID:  organizationID,
		SearchAllAgents: req.SearchAllAgents,
		Limit:           req.Limit,
		MinScore:        req.MinScore,
	})
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	scope := "agent"
	if req.SearchAllAgents {
		scope = "org"
	}
	writeData(w, requestID, map[string]any{
		"results": resp.Results,
		"summary": resp.Summary,
		"scope":   scope,
	})
}

// postCallEnvelope discriminates the three post_call payload shapes on
// "type", per spec.md §6.
type postCallEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptionData struct {
	ConversationID   string         `json:"conversation_id"`
	AgentID          string         `json:"agent_id"`
	CallerID         string         `json:"caller_id"`
	Transcript       []turnPayload  `json:"transcript"`
	Status           string         `json:"status"`
	Duration         int            `json:"duration"`
	DynamicVariables map[string]any `json:"dynamic_variables"`
}

type turnPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type audioData struct {
	ConversationID string `json:"conversation_id"`
	FullAudio      string `json:"full_audio"`
}

type failureData struct {
	AgentID        string            `json:"agent_id"`
	ConversationID string            `json:"conversation_id"`
	FailureReason  string            `json:"failure_reason"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Server) handlePostCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := observability.CorrelationID(ctx)

	body, err := readAllBody(r)
	if err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "unreadable post_call body", err))
		return
	}

	var env postCallEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed post_call body", err))
		return
	}

	switch env.Type {
	case "post_call_transcription":
		s.handleTranscription(w, r, requestID, body, env.Data)
	case "post_call_audio":
		s.handleAudio(w, r, requestID, env.Data)
	case "call_initiation_failure":
		s.handleFailure(w, r, requestID, env.Data)
	default:
		writeError(w, requestID, apperr.New(apperr.PayloadSchema, "unknown post_call type: "+env.Type))
	}
}

func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request, requestID string, rawBody []byte, data json.RawMessage) {
	ctx := r.Context()
	var d transcriptionData
	if err := json.Unmarshal(data, &d); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed transcription data", err))
		return
	}

	organizationID := s.organizationFor(ctx, d.AgentID)
	ctx = observability.WithRequestFields(ctx, observability.RequestFields{
		CorrelationID:  requestID,
		OrganizationID: organizationID,
		ConversationID: d.ConversationID,
	})

	if s.archive != nil {
		_ = s.archive.SaveTranscription(ctx, d.ConversationID, rawBody)
	}

	turns := make([]domain.Turn, 0, len(d.Transcript))
	for _, t := range d.Transcript {
		turns = append(turns, domain.Turn{Role: domain.Role(t.Role), Text: t.Text})
	}

	if s.relational != nil {
		conv := domain.Conversation{
			ConversationID:  d.ConversationID,
			AgentID:         d.AgentID,
			CallerID:        d.CallerID,
			OrganizationID:  organizationID,
			EndedAt:         time.Now().UTC(),
			DurationSeconds: d.Duration,
			Status:          domain.StatusCompleted,
			Transcript:      turns,
		}
		_ = s.relational.UpsertConversation(ctx, conv)

		if d.CallerID != "" {
			caller, ok, _ := s.relational.GetCaller(ctx, d.CallerID)
			if !ok {
				caller = domain.Caller{CallerID: d.CallerID, OrganizationID: organizationID}
			}
			caller.Touch(time.Now().UTC())
			_ = s.relational.UpsertCaller(ctx, caller)
		}
	}

	payload := extraction.JobPayload{
		ConversationID:  d.ConversationID,
		AgentID:         d.AgentID,
		CallerID:        d.CallerID,
		OrganizationID:  organizationID,
		Transcript:      turns,
		StartedAt:       time.Now().UTC(),
		DurationSeconds: d.Duration,
	}

	queued := "immediate"
	accepted := true
	if s.scheduler != nil {
		if !s.scheduler.Enqueue(jobs.Job{ID: d.ConversationID, Payload: payload}) {
			queued = "deferred"
			if s.archive != nil {
				if b, err := json.Marshal(payload); err == nil {
					_ = s.archive.SaveExtractionJob(ctx, d.ConversationID, b)
				}
				_ = s.archive.SaveExtractionState(ctx, payloadstore.ExtractionState{
					ConversationID: d.ConversationID,
					Status:         payloadstore.StatusQueued,
					Queued:         "deferred",
				})
			}
		} else if s.archive != nil {
			_ = s.archive.SaveExtractionState(ctx, payloadstore.ExtractionState{
				ConversationID: d.ConversationID,
				Status:         payloadstore.StatusQueued,
				Queued:         "immediate",
			})
		}
	} else {
		accepted = false
		queued = "none"
	}

	writeData(w, requestID, map[string]any{
		"conversation_id": d.ConversationID,
		"accepted":        accepted,
		"queued":          queued,
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request, requestID string, data json.RawMessage) {
	ctx := r.Context()
	var d audioData
	if err := json.Unmarshal(data, &d); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed audio data", err))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(d.FullAudio)
	if err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "full_audio is not valid base64", err))
		return
	}

	if s.archive != nil {
		if err := s.archive.SaveAudio(ctx, d.ConversationID, audio); err != nil {
			writeError(w, requestID, apperr.Wrap(apperr.Internal, "persist audio payload", err))
			return
		}
	}

	writeData(w, requestID, map[string]any{
		"conversation_id": d.ConversationID,
		"accepted":        true,
		"queued":          "none",
	})
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request, requestID string, data json.RawMessage) {
	ctx := r.Context()
	var d failureData
	if err := json.Unmarshal(data, &d); err != nil {
		writeError(w, requestID, apperr.Wrap(apperr.PayloadSchema, "malformed failure data", err))
		return
	}

	organizationID := s.organizationFor(ctx, d.AgentID)
	if s.archive != nil {
		b, _ := json.Marshal(d)
		_ = s.archive.SaveFailure(ctx, d.ConversationID, b)
	}
	if s.relational != nil {
		_ = s.relational.UpsertConversation(ctx, domain.Conversation{
			ConversationID: d.ConversationID,
			AgentID:        d.AgentID,
			OrganizationID: organizationID,
			EndedAt:        time.Now().UTC(),
			Status:         domain.StatusFailed,
		})
	}

	writeData(w, requestID, map[string]any{
		"conversation_id": d.ConversationID,
		"accepted":        true,
		"queued":          "none",
	})
}

// organizationFor resolves an agent's organization for scoping, returning
// "" when the relational store is unset or the agent is unknown (the
// downstream components all degrade gracefully on an empty
// organizationID).
func (s *Server) organizationFor(ctx context.Context, agentID string) string {
	if s.relational == nil || agentID == "" {
		return ""
	}
	agent, ok, err := s.relational.GetAgent(ctx, agentID)
	if err != nil || !ok {
		return ""
	}
	return agent.OrganizationID
}

func readAllBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
