package extraction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/observability"
)

// ShareableEvent announces a memory crossing the organization's share
// threshold, for consumers that fan a caller's shared facts out to other
// agents without waiting on their next context-assembly call.
type ShareableEvent struct {
	MemoryID       string    `json:"memory_id"`
	CallerID       string    `json:"caller_id"`
	OrganizationID string    `json:"organization_id"`
	Importance     int       `json:"importance"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReinforcedEvent announces a memory being reinforced by a new
// conversation, for analytics consumers tracking recall/reinforcement rates.
type ReinforcedEvent struct {
	MemoryID          string    `json:"memory_id"`
	ConversationID    string    `json:"conversation_id"`
	ReinforcementCount int      `json:"reinforcement_count"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher fans decisions out onto the memory.shareable/memory.reinforced
// topics. Grounded on the teacher's internal/workspaces.KafkaCommitPublisher
// (per-event-type kafka.Writer, nil-receiver no-op when disabled).
type Publisher struct {
	shareable  *kafka.Writer
	reinforced *kafka.Writer
}

// NewPublisher builds a Publisher from cfg. A zero-value Brokers list
// disables propagation entirely; callers may still call Publish* safely.
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	if len(cfg.Brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		shareable:  &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.ShareableTopic, Balancer: &kafka.LeastBytes{}},
		reinforced: &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.ReinforceTopic, Balancer: &kafka.LeastBytes{}},
	}
}

// PublishShareable emits ev on the shareable-memory topic. Errors are
// logged and swallowed: propagation is best-effort and must never fail a
// conversation's extraction job.
func (p *Publisher) PublishShareable(ctx context.Context, ev ShareableEvent) {
	if p == nil || p.shareable == nil {
		return
	}
	p.publish(ctx, p.shareable, ev)
}

// PublishReinforced emits ev on the reinforcement topic.
func (p *Publisher) PublishReinforced(ctx context.Context, ev ReinforcedEvent) {
	if p == nil || p.reinforced == nil {
		return
	}
	p.publish(ctx, p.reinforced, ev)
}

func (p *Publisher) publish(ctx context.Context, w *kafka.Writer, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("propagate_event_marshal_failed")
		return
	}
	if err := w.WriteMessages(ctx, kafka.Message{Value: payload, Time: time.Now()}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("propagate_event_publish_failed")
	}
}

// Close shuts down both writers.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.shareable != nil {
		_ = p.shareable.Close()
	}
	if p.reinforced != nil {
		_ = p.reinforced.Close()
	}
}
