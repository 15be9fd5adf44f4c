package report

import (
	"context"

	"github.com/bardlex/noso2m/internal/messaging"
)

// Publisher is the part of messaging.KafkaClient the sink uses
type Publisher interface {
	Publish(ctx context.Context, topic string, env *messaging.Envelope) error
}

// KafkaHandler publishes events to per-kind topics
type KafkaHandler struct {
	publisher Publisher
	prefix    string
	runID     string
}

// NewKafkaHandler creates a KafkaHandler. Wrap it in Async.
func NewKafkaHandler(p Publisher, topicPrefix, runID string) *KafkaHandler {
	return &KafkaHandler{publisher: p, prefix: topicPrefix, runID: runID}
}

// Name implements Handler
func (h *KafkaHandler) Name() string { return "kafka" }

// Handle implements Handler
func (h *KafkaHandler) Handle(ctx context.Context, e Event) error {
	env := messaging.NewEnvelope(h.runID, e.EventType(), e.EventTime(), e)
	return h.publisher.Publish(ctx, messaging.Topic(h.prefix, topicFor(e)), env)
}

func topicFor(e Event) string {
	switch e.(type) {
	case *BlockOpened, *BlockClosed:
		return messaging.TopicBlocks
	case *Submission:
		return messaging.TopicSubmissions
	default:
		return messaging.TopicNotices
	}
}
