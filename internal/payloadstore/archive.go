package payloadstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Status is the extraction job's lifecycle stage as recorded in a
// conversation's extraction_state.json, per spec.md §6.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
)

// ExtractionState is the persisted queued|running|failed + attempts +
// last_error marker from spec.md §6, plus the deferred-overflow field the
// recovery sweep scans for (spec.md §4.8: "queued=deferred").
type ExtractionState struct {
	ConversationID string    `json:"conversation_id"`
	Status         Status    `json:"status"`
	Queued         string    `json:"queued"` // "immediate" | "deferred"
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Archive is the Persistent Payload Store (C10): a per-conversation
// archive of the raw webhook payloads plus extraction state, addressed
// through the ObjectStore abstraction so the backend (local disk or S3)
// is interchangeable.
type Archive struct {
	Store ObjectStore
}

func conversationDir(conversationID string) string {
	return "payloads/" + conversationID
}

func keyFor(conversationID, suffix string) string {
	return fmt.Sprintf("%s/%s_%s", conversationDir(conversationID), conversationID, suffix)
}

// SaveTranscription persists the raw post_call_transcription payload.
func (a *Archive) SaveTranscription(ctx context.Context, conversationID string, payload []byte) error {
	return a.Store.Put(ctx, keyFor(conversationID, "transcription.json"), bytes.NewReader(payload), PutOptions{ContentType: "application/json"})
}

// SaveAudio persists decoded raw audio bytes (post_call_audio, full_audio
// already base64-decoded by the caller). Stored opaquely; the core never
// reads this back.
func (a *Archive) SaveAudio(ctx context.Context, conversationID string, audio []byte) error {
	return a.Store.Put(ctx, keyFor(conversationID, "audio.bin"), bytes.NewReader(audio), PutOptions{ContentType: "application/octet-stream"})
}

// SaveFailure persists a call_initiation_failure payload.
func (a *Archive) SaveFailure(ctx context.Context, conversationID string, payload []byte) error {
	return a.Store.Put(ctx, keyFor(conversationID, "failure.json"), bytes.NewReader(payload), PutOptions{ContentType: "application/json"})
}

// SaveExtractionState writes (overwrites) the extraction_state.json
// marker for conversationID.
func (a *Archive) SaveExtractionState(ctx context.Context, state ExtractionState) error {
	state.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return a.Store.Put(ctx, keyFor(state.ConversationID, "extraction_state.json"), bytes.NewReader(b), PutOptions{ContentType: "application/json"})
}

// LoadExtractionState reads back a conversation's extraction state.
// Returns ErrNotFound if the conversation has none yet.
func (a *Archive) LoadExtractionState(ctx context.Context, conversationID string) (ExtractionState, error) {
	r, _, err := a.Store.Get(ctx, keyFor(conversationID, "extraction_state.json"))
	if err != nil {
		return ExtractionState{}, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return ExtractionState{}, err
	}
	var state ExtractionState
	if err := json.Unmarshal(b, &state); err != nil {
		return ExtractionState{}, err
	}
	return state, nil
}

// SaveExtractionJob persists the JSON-encoded extraction job payload
// alongside a conversation's transcription, so a deferred (queue-overflow)
// job can be fully reconstructed by the recovery sweep without re-deriving
// it from the raw transcription payload.
func (a *Archive) SaveExtractionJob(ctx context.Context, conversationID string, payload []byte) error {
	return a.Store.Put(ctx, keyFor(conversationID, "extraction_job.json"), bytes.NewReader(payload), PutOptions{ContentType: "application/json"})
}

// LoadExtractionJob reads back a conversation's persisted extraction job
// payload. Returns ErrNotFound if none was ever saved.
func (a *Archive) LoadExtractionJob(ctx context.Context, conversationID string) ([]byte, error) {
	r, _, err := a.Store.Get(ctx, keyFor(conversationID, "extraction_job.json"))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ScanDeferred lists every conversation whose extraction_state.json
// currently records queued=deferred, for the recovery sweep (spec.md
// §4.8, §9) to requeue.
func (a *Archive) ScanDeferred(ctx context.Context) ([]ExtractionState, error) {
	keys, err := a.Store.List(ctx, "payloads/")
	if err != nil {
		return nil, err
	}
	var deferred []ExtractionState
	for _, key := range keys {
		if !strings.HasSuffix(key, "_extraction_state.json") {
			continue
		}
		r, _, err := a.Store.Get(ctx, key)
		if err != nil {
			continue
		}
		b, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}
		var state ExtractionState
		if err := json.Unmarshal(b, &state); err != nil {
			continue
		}
		if state.Queued == "deferred" {
			deferred = append(deferred, state)
		}
	}
	return deferred, nil
}
