package webhook

import (
	"context"

	"github.com/google/uuid"

	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
)

// dispatchPublisher is the one Producer method KafkaSender needs, narrowed
// so tests can supply a fake instead of a live Kafka connection.
type dispatchPublisher interface {
	PublishDispatch(ctx context.Context, d taskqueue.DispatchMessage) error
}

// dispatchErrorCounter is the one method KafkaSender needs from a metrics
// counter — satisfied directly by prometheus.Counter, narrowed so tests can
// supply a fake instead of standing up a real Collector.
type dispatchErrorCounter interface {
	Inc()
}

// KafkaSender hands the actual HTTP POST off to the worker pool: Send
// returns true as soon as the dispatch job is durably enqueued, not once the
// chat platform has actually received it. This is the async counterpart to
// HTTPSender — notifymanager only needs to know "is this task off my plate",
// and spec.md's Non-goals already disclaim strong delivery durability
// ("at-most-once per retry attempt"), so enqueue success is an honest ok.
type KafkaSender struct {
	producer dispatchPublisher
	errors   dispatchErrorCounter
}

func NewKafkaSender(producer dispatchPublisher) *KafkaSender {
	return &KafkaSender{producer: producer}
}

// WithErrorCounter attaches a counter incremented once per failed enqueue
// attempt. Optional: a nil counter (the default) just skips the observation.
func (s *KafkaSender) WithErrorCounter(c dispatchErrorCounter) *KafkaSender {
	s.errors = c
	return s
}

func (s *KafkaSender) Send(ctx context.Context, webhookURL, textBody string) bool {
	err := s.producer.PublishDispatch(ctx, taskqueue.DispatchMessage{
		ID:         uuid.NewString(),
		WebhookURL: webhookURL,
		TextBody:   textBody,
	})
	if err != nil {
		if s.errors != nil {
			s.errors.Inc()
		}
		return false
	}
	return true
}
