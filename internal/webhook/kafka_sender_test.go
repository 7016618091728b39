package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
)

type fakePublisher struct {
	err  error
	last taskqueue.DispatchMessage
}

func (f *fakePublisher) PublishDispatch(ctx context.Context, d taskqueue.DispatchMessage) error {
	f.last = d
	return f.err
}

func TestKafkaSenderReturnsTrueOnSuccessfulEnqueue(t *testing.T) {
	pub := &fakePublisher{}
	s := NewKafkaSender(pub)

	ok := s.Send(context.Background(), "https://hooks.example/x", "hello")

	assert.True(t, ok)
	assert.Equal(t, "https://hooks.example/x", pub.last.WebhookURL)
	assert.Equal(t, "hello", pub.last.TextBody)
	assert.NotEmpty(t, pub.last.ID)
}

func TestKafkaSenderReturnsFalseWhenBrokerUnreachable(t *testing.T) {
	pub := &fakePublisher{err: errors.New("dial tcp: connection refused")}
	s := NewKafkaSender(pub)

	ok := s.Send(context.Background(), "https://hooks.example/x", "hello")

	assert.False(t, ok)
}

type fakeCounter struct{ count int }

func (f *fakeCounter) Inc() { f.count++ }

func TestKafkaSenderIncrementsErrorCounterOnEnqueueFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("dial tcp: connection refused")}
	counter := &fakeCounter{}
	s := NewKafkaSender(pub).WithErrorCounter(counter)

	s.Send(context.Background(), "https://hooks.example/x", "hello")

	assert.Equal(t, 1, counter.count)
}

func TestKafkaSenderDoesNotIncrementErrorCounterOnSuccess(t *testing.T) {
	pub := &fakePublisher{}
	counter := &fakeCounter{}
	s := NewKafkaSender(pub).WithErrorCounter(counter)

	s.Send(context.Background(), "https://hooks.example/x", "hello")

	assert.Equal(t, 0, counter.count)
}
