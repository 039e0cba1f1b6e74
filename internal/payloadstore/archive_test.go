package payloadstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	disk, err := NewLocalDisk(t.TempDir())
	require.NoError(t, err)
	return &Archive{Store: disk}
}

func TestArchiveSavesAndLoadsTranscriptionPayload(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.SaveTranscription(ctx, "conv-1", []byte(`{"type":"post_call_transcription"}`)))

	r, attrs, err := a.Store.Get(ctx, "payloads/conv-1/conv-1_transcription.json")
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"post_call_transcription"}`, string(b))
	require.Equal(t, "payloads/conv-1/conv-1_transcription.json", attrs.Key)
}

func TestArchiveSavesAudioAndFailurePayloads(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.SaveAudio(ctx, "conv-2", []byte{0x01, 0x02, 0x03}))
	require.NoError(t, a.SaveFailure(ctx, "conv-2", []byte(`{"failure_reason":"timeout"}`)))

	exists, err := a.Store.Exists(ctx, "payloads/conv-2/conv-2_audio.bin")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = a.Store.Exists(ctx, "payloads/conv-2/conv-2_failure.json")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestArchiveExtractionStateRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	err := a.SaveExtractionState(ctx, ExtractionState{ConversationID: "conv-3", Status: StatusRunning, Queued: "immediate", Attempts: 1})
	require.NoError(t, err)

	state, err := a.LoadExtractionState(ctx, "conv-3")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, state.Status)
	require.Equal(t, 1, state.Attempts)
	require.False(t, state.UpdatedAt.IsZero())
}

func TestArchiveLoadExtractionStateMissingReturnsNotFound(t *testing.T) {
	a := newTestArchive(t)
	_, err := a.LoadExtractionState(context.Background(), "never-existed")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveExtractionJobRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.SaveExtractionJob(ctx, "conv-4", []byte(`{"conversation_id":"conv-4"}`)))

	b, err := a.LoadExtractionJob(ctx, "conv-4")
	require.NoError(t, err)
	require.JSONEq(t, `{"conversation_id":"conv-4"}`, string(b))
}

func TestArchiveLoadExtractionJobMissingReturnsNotFound(t *testing.T) {
	a := newTestArchive(t)
	_, err := a.LoadExtractionJob(context.Background(), "never-existed")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveScanDeferredFindsOnlyDeferredConversations(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, a.SaveExtractionState(ctx, ExtractionState{ConversationID: "conv-a", Status: StatusQueued, Queued: "immediate"}))
	require.NoError(t, a.SaveExtractionState(ctx, ExtractionState{ConversationID: "conv-b", Status: StatusQueued, Queued: "deferred"}))
	require.NoError(t, a.SaveExtractionState(ctx, ExtractionState{ConversationID: "conv-c", Status: StatusQueued, Queued: "deferred"}))

	deferred, err := a.ScanDeferred(ctx)
	require.NoError(t, err)
	require.Len(t, deferred, 2)
	ids := []string{deferred[0].ConversationID, deferred[1].ConversationID}
	require.ElementsMatch(t, []string{"conv-b", "conv-c"}, ids)
}
