package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
)

func TestNewReturnsNilSinkWhenDisabled(t *testing.T) {
	sink, err := New(context.Background(), config.ClickHouseConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, sink)
}

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var sink *Sink
	require.NotPanics(t, func() {
		sink.RecordExtractionOutcome(context.Background(), "conv-1", "agent-1", "org-1", "success", time.Millisecond)
		sink.RecordSearchLatency(context.Background(), "caller-1", "agent-1", "org-1", time.Millisecond, 3)
	})
	require.NoError(t, sink.Close())
}
