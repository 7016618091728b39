// Package taskqueue carries webhook-dispatch jobs between the orchestrator
// process and the async worker/retry-relay processes, generalized from the
// teacher's kafkaproducer package which shipped generic task/retry envelopes
// for its own email-delivery worker.
package taskqueue

// DispatchMessage is one outbound chat-webhook call: the actual HTTP POST is
// performed by a worker consuming the main topic, not by the orchestrator
// process itself. Attempt counts transport-level retries (distinct from
// spec.md §5's task-level maxRetryCount, which spans ticks).
type DispatchMessage struct {
	ID         string `json:"id"`
	WebhookURL string `json:"webhook_url"`
	TextBody   string `json:"text_body"`
	Attempt    int    `json:"attempt"`
}

// RetryMessage schedules a delayed republish of Dispatch to the main topic.
type RetryMessage struct {
	Dispatch    DispatchMessage `json:"dispatch"`
	NextRetryAt int64           `json:"next_retry_at"` // epoch ms
}
