// Package webhook implements the outbound WebhookSender dependency spec.md
// §6.2 describes: send(webhookUrl, textBody) -> ok. The manager owns pacing
// between calls; this package is stateless per call.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Sender is the interface the notification manager calls to dispatch a
// rendered message. Implementations return false (not an error) on any
// non-2xx response or transport failure, per spec.md §6.2 — the manager
// treats false as a task-level failure regardless of cause.
type Sender interface {
	Send(ctx context.Context, webhookURL, textBody string) bool
}

// HTTPSender posts textBody as a JSON payload to webhookURL with a bounded
// connect/read timeout and a small retry budget, per spec.md §5's
// "10s connect/read timeout and up to 2 client-level retries" clause. This
// is distinct from the task-level maxRetryCount, which spans ticks.
type HTTPSender struct {
	client     *http.Client
	maxRetries int
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
	}
}

type wechatWorkPayload struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (s *HTTPSender) Send(ctx context.Context, webhookURL, textBody string) bool {
	body := wechatWorkPayload{MsgType: "text"}
	body.Text.Content = textBody
	payload, err := json.Marshal(body)
	if err != nil {
		return false
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
		if err != nil {
			return false
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(backoff(attempt))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
		lastErr = nil
		time.Sleep(backoff(attempt))
	}
	_ = lastErr
	return false
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
}
