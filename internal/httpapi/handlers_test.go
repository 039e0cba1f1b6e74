package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/contextassembler"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/llm"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/search"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/signature"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubProvider struct{ greeting string }

func (s stubProvider) Extract(context.Context, string, llm.AgentProfile) ([]llm.ExtractedMemory, error) {
	return nil, nil
}

func (s stubProvider) SummarizeFirstMessage(_ context.Context, _ llm.AgentProfile, _ []domain.Memory) (string, error) {
	return s.greeting, nil
}

func (s stubProvider) Name() string { return "stub" }

type identityEmbedder struct{ dims int }

func (e identityEmbedder) Dimensions() int { return e.dims }
func (e identityEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type testHarness struct {
	server     *Server
	relational memoryRelationalStoreHandle
	archive    *payloadstore.Archive
	scheduler  *jobs.Scheduler
}

// memoryRelationalStoreHandle exposes the seeding helpers the in-memory
// RelationalStore provides without exporting its concrete type.
type memoryRelationalStoreHandle = interface {
	memorystore.RelationalStore
	SeedOrganization(domain.Organization)
	SeedAgent(domain.Agent)
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	relational := memorystore.NewMemoryRelationalStore()
	relational.SeedOrganization(domain.Organization{OrganizationID: "org-1", HMACSecret: []byte(testSecret)})
	relational.SeedAgent(domain.Agent{AgentID: "agent-1", OrganizationID: "org-1"})

	vecStore := memorystore.NewAdapter(memorystore.NewMemoryVectorStore(4), identityEmbedder{dims: 4})
	assembler := &contextassembler.Assembler{Store: vecStore, Provider: stubProvider{greeting: "Hello there!"}}
	searchSvc := &search.Service{Store: vecStore}

	archive, err := payloadstore.NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	arc := &payloadstore.Archive{Store: archive}

	handler := func(context.Context, jobs.Job) error { return nil }
	scheduler := jobs.New(handler, nil, 1, 8, 3, []time.Duration{time.Millisecond}, time.Second)

	srv := NewServer(Dependencies{
		Assembler:     assembler,
		Search:        searchSvc,
		Relational:    relational,
		Archive:       arc,
		Scheduler:     scheduler,
		HMACSecret:    []byte(testSecret),
		SignatureSkew: 5 * time.Minute,
		Deadlines:     config.DeadlineConfig{PreCall: time.Second, Search: time.Second, PostCall: time.Second},
	})

	return &testHarness{server: srv, relational: relational, archive: arc, scheduler: scheduler}
}

func (h *testHarness) signedRequest(t *testing.T, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("webhook-signature", signature.Sign([]byte(testSecret), time.Now(), body))
	return req
}

func TestHandlePreCallKnownCallerReturnsPersonalizedGreeting(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(preCallRequest{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		DynamicVariables: map[string]any{
			"system__caller_id": "caller-1",
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/pre_call", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "ok", env.Status)

	data := env.Data.(map[string]any)
	require.Equal(t, "Hello there!", data["first_message"])
}

func TestHandlePreCallUnknownCallerDegradesToGenericGreeting(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(preCallRequest{AgentID: "agent-1", ConversationID: "conv-2"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/pre_call", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]any)
	require.Equal(t, "Hello there!", data["first_message"])
	ctxData := data["context"].(map[string]any)
	require.Empty(t, ctxData["memories"])
}

func TestHandlePreCallMissingSignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(preCallRequest{AgentID: "agent-1", ConversationID: "conv-3"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pre_call", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "error", env.Status)
}

func TestHandlePreCallStaleSignatureIsRejected(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(preCallRequest{AgentID: "agent-1", ConversationID: "conv-4"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pre_call", bytes.NewReader(body))
	req.Header.Set("webhook-signature", signature.Sign([]byte(testSecret), time.Now().Add(-time.Hour), body))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleInCallSearchScopesToAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.server.search.Store.Store(ctx, domain.Memory{
		CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1",
		Content: "likes jazz music", Type: domain.MemoryPreference, Importance: 6,
	})
	require.NoError(t, err)

	body, err := json.Marshal(inCallSearchRequest{
		Query: "jazz", CallerID: "caller-1", AgentID: "agent-1",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/in_call_search", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]any)
	require.Equal(t, "agent", data["scope"])
	results := data["results"].([]any)
	require.Len(t, results, 1)
}

func TestHandleInCallSearchRejectsOverlongQuery(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(inCallSearchRequest{Query: strings.Repeat("a", search.MaxQueryChars+1), CallerID: "caller-1", AgentID: "agent-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/in_call_search", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostCallTranscriptionEnqueuesExtractionJob(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(postCallEnvelope{
		Type: "post_call_transcription",
		Data: mustJSON(t, transcriptionData{
			ConversationID: "conv-5",
			AgentID:        "agent-1",
			CallerID:       "caller-1",
			Transcript:     []turnPayload{{Role: "caller", Text: "hi"}, {Role: "agent", Text: "hello"}},
			Duration:       42,
		}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/post_call", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]any)
	require.Equal(t, true, data["accepted"])
	require.Equal(t, "immediate", data["queued"])

	conv, ok, err := h.relational.GetConversation(context.Background(), "conv-5")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusCompleted, conv.Status)

	state, err := h.archive.LoadExtractionState(context.Background(), "conv-5")
	require.NoError(t, err)
	require.Equal(t, payloadstore.StatusQueued, state.Status)
}

func TestHandlePostCallAudioDecodesAndPersists(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(postCallEnvelope{
		Type: "post_call_audio",
		Data: mustJSON(t, audioData{ConversationID: "conv-6", FullAudio: "aGVsbG8="}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/post_call", body))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePostCallAudioRejectsInvalidBase64(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(postCallEnvelope{
		Type: "post_call_audio",
		Data: mustJSON(t, audioData{ConversationID: "conv-7", FullAudio: "not-base64!!"}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/post_call", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostCallFailureTransitionsConversation(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(postCallEnvelope{
		Type: "call_initiation_failure",
		Data: mustJSON(t, failureData{AgentID: "agent-1", ConversationID: "conv-8", FailureReason: "no_answer"}),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/post_call", body))

	require.Equal(t, http.StatusOK, rec.Code)
	conv, ok, err := h.relational.GetConversation(context.Background(), "conv-8")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusFailed, conv.Status)
}

func TestHandlePostCallUnknownTypeReturnsPayloadSchemaError(t *testing.T) {
	h := newHarness(t)
	body, err := json.Marshal(postCallEnvelope{Type: "something_else", Data: mustJSON(t, struct{}{})})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, h.signedRequest(t, http.MethodPost, "/webhooks/post_call", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
