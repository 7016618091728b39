package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// Consumer reads DispatchMessage/RetryMessage envelopes with manual commit,
// so a message is only acknowledged after its effect (a send attempt, or a
// republish to the main topic) has actually happened.
type Consumer struct {
	reader *kgo.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})
	return &Consumer{reader: r}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// ReadDispatch consumes one DispatchMessage from the main topic.
func (c *Consumer) ReadDispatch(ctx context.Context) (DispatchMessage, func(context.Context) error, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return DispatchMessage{}, nil, err
	}

	var dm DispatchMessage
	if err := json.Unmarshal(m.Value, &dm); err != nil {
		_ = c.reader.CommitMessages(ctx, m)
		return DispatchMessage{}, nil, err
	}

	return dm, c.commitFunc(m), nil
}

// ReadRetry consumes one RetryMessage from the retry topic.
func (c *Consumer) ReadRetry(ctx context.Context) (RetryMessage, func(context.Context) error, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return RetryMessage{}, nil, err
	}

	var rm RetryMessage
	if err := json.Unmarshal(m.Value, &rm); err != nil {
		_ = c.reader.CommitMessages(ctx, m)
		return RetryMessage{}, nil, err
	}

	return rm, c.commitFunc(m), nil
}

func (c *Consumer) commitFunc(m kgo.Message) func(context.Context) error {
	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return c.reader.CommitMessages(cctx, m)
	}
}
