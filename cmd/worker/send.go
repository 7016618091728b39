package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
	"github.com/franksunye/FSOpsAssistant/internal/webhook"
)

// maxTransportAttempts bounds retries at the delivery-transport layer only.
// It is independent of tasks.Task's maxRetryCount, which is decided a tick
// at a time by notifymanager and can span hours.
const maxTransportAttempts = 3

func processOne(ctx context.Context, log *zap.Logger, sender webhook.Sender, retryProducer *taskqueue.Producer, dm taskqueue.DispatchMessage) error {
	if sender.Send(ctx, dm.WebhookURL, dm.TextBody) {
		return nil
	}

	attempt := dm.Attempt + 1
	if attempt >= maxTransportAttempts {
		log.Warn("worker: dropping dispatch after exhausting transport retries",
			zap.String("dispatch_id", dm.ID), zap.Int("attempt", attempt))
		return nil
	}

	nextRetryAt := time.Now().Add(computeBackoff(attempt)).UnixMilli()
	dm.Attempt = attempt
	return retryProducer.PublishRetry(ctx, dm, nextRetryAt)
}

func computeBackoff(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 2 * time.Second
	case 2:
		return 5 * time.Second
	default:
		return 10 * time.Second
	}
}
