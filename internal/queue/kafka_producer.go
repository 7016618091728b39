package taskqueue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// Producer publishes webhook-dispatch jobs and their delayed retries onto
// separate topics, generalized from the teacher's per-purpose producer.
type Producer struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewProducer(brokersCSV, topic string) *Producer {
	w := &kgo.Writer{
		Addr:         kgo.TCP(SplitCSV(brokersCSV)...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return &Producer{writer: w, timeout: 3 * time.Second}
}

func (p *Producer) Close() error { return p.writer.Close() }

// PublishDispatch enqueues an outbound webhook call for a worker to perform.
// Returning nil here is what notifymanager treats as "sent": the actual HTTP
// POST happens asynchronously in cmd/worker.
func (p *Producer) PublishDispatch(ctx context.Context, d DispatchMessage) error {
	return p.publishJSON(ctx, d.ID, d)
}

// PublishRetry enqueues a delayed republish of d, consumed by the
// retry-relay process rather than a worker directly.
func (p *Producer) PublishRetry(ctx context.Context, d DispatchMessage, nextRetryAt int64) error {
	return p.publishJSON(ctx, d.ID, RetryMessage{Dispatch: d, NextRetryAt: nextRetryAt})
}

func (p *Producer) publishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}

// SplitCSV parses a comma-separated broker list, trimming whitespace and
// dropping empty entries — the form every cmd/*/main.go's KAFKA_BROKERS
// env var takes.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
