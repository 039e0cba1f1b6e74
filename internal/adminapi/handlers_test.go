package adminapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/extraction"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/jobs"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/memorystore"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/payloadstore"
)

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

func newTestServer(t *testing.T) (*Server, memorystore.Adapter) {
	srv, vecStore, _ := newTestServerWithRelational(t)
	return srv, vecStore
}

func newTestServerWithRelational(t *testing.T) (*Server, memorystore.Adapter, memorystore.RelationalStore) {
	t.Helper()
	disk, err := payloadstore.NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	archive := &payloadstore.Archive{Store: disk}

	persistence, err := jobs.NewDiskPersistence(t.TempDir())
	require.NoError(t, err)

	handler := func(context.Context, jobs.Job) error { return nil }
	scheduler := jobs.New(handler, persistence, 1, 8, 3, []time.Duration{time.Millisecond}, time.Second)

	vecStore := memorystore.NewAdapter(memorystore.NewMemoryVectorStore(4), identityEmbedder{dims: 4})
	relational := memorystore.NewMemoryRelationalStore()

	srv := NewServer(Dependencies{
		Archive:     archive,
		Scheduler:   scheduler,
		Persistence: persistence,
		VectorStore: vecStore,
		Relational:  relational,
	})
	return srv, vecStore, relational
}

func TestSweepOnceRecoversDeferredJobsWithSavedPayload(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	payload := extraction.JobPayload{ConversationID: "conv-1", AgentID: "agent-1"}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, srv.archive.SaveExtractionJob(ctx, "conv-1", b))
	require.NoError(t, srv.archive.SaveExtractionState(ctx, payloadstore.ExtractionState{
		ConversationID: "conv-1", Status: payloadstore.StatusQueued, Queued: "deferred",
	}))

	recovered, err := srv.sweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	state, err := srv.archive.LoadExtractionState(ctx, "conv-1")
	require.NoError(t, err)
	require.Equal(t, "immediate", state.Queued)
}

func TestSweepOnceSkipsConversationsMissingJobPayload(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, srv.archive.SaveExtractionState(ctx, payloadstore.ExtractionState{
		ConversationID: "conv-2", Status: payloadstore.StatusQueued, Queued: "deferred",
	}))

	recovered, err := srv.sweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, recovered)
}

func TestHandleDeleteCallerErasesVectorStoreMemories(t *testing.T) {
	srv, vecStore := newTestServer(t)
	ctx := context.Background()

	_, err := vecStore.Store(ctx, domain.Memory{CallerID: "caller-1", AgentID: "agent-1", OrganizationID: "org-1", Content: "likes tea", Type: domain.MemoryPreference, Importance: 4})
	require.NoError(t, err)

	req := httptest.NewRequest("DELETE", "/admin/v1/callers/caller-1", nil)
	req.SetPathValue("caller_id", "caller-1")
	rec := httptest.NewRecorder()
	srv.handleDeleteCaller(rec, req)

	require.Equal(t, 200, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "ok", env.Status)

	remaining, err := vecStore.Recent(ctx, memorystore.ScopeCallerOnly, memorystore.ScopedQuery{CallerID: "caller-1", OrganizationID: "org-1"}, 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestHandleDeleteCallerErasesRelationalCallerRow(t *testing.T) {
	srv, _, relational := newTestServerWithRelational(t)
	ctx := context.Background()

	require.NoError(t, relational.UpsertCaller(ctx, domain.Caller{CallerID: "caller-1", OrganizationID: "org-1"}))

	req := httptest.NewRequest("DELETE", "/admin/v1/callers/caller-1", nil)
	req.SetPathValue("caller_id", "caller-1")
	rec := httptest.NewRecorder()
	srv.handleDeleteCaller(rec, req)
	require.Equal(t, 200, rec.Code)

	_, ok, err := relational.GetCaller(ctx, "caller-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHandleListDeferredJobsEmptyWhenNoneDeferred(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/admin/v1/jobs/deferred", nil)
	rec := httptest.NewRecorder()
	srv.handleListDeferredJobs(rec, req)

	require.Equal(t, 200, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data := env.Data.(map[string]any)
	require.Empty(t, data["jobs"])
}

func TestHandleHealthzReportsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealthz(rec, req)
	require.Equal(t, 200, rec.Code)
}

func TestHandleMetricsReportsQueueDepth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "extraction_queue_depth 0")
}
