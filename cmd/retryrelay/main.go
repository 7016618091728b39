// Command retryrelay waits out a webhook dispatch's backoff window and
// republishes it to the main dispatch topic for another worker attempt.
// It replaces the teacher's scheduler binary, generalized from
// per-task email retries to per-dispatch webhook retries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	brokersCSV := getenv("KAFKA_BROKERS", "localhost:9092")
	mainTopic := getenv("KAFKA_TOPIC_DISPATCH", "sla-agent-dispatch")
	retryTopic := getenv("KAFKA_TOPIC_RETRY", "sla-agent-dispatch-retry")
	groupID := getenv("KAFKA_GROUP_ID", "sla-agent-retryrelay")

	consumer := taskqueue.NewConsumer(taskqueue.SplitCSV(brokersCSV), retryTopic, groupID)
	defer consumer.Close()

	mainProducer := taskqueue.NewProducer(brokersCSV, mainTopic)
	defer mainProducer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("retryrelay: started", zap.String("retry_topic", retryTopic), zap.String("main_topic", mainTopic))

	for ctx.Err() == nil {
		rm, commit, err := consumer.ReadRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("retryrelay: read error", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		waitUntilDue(ctx, rm.NextRetryAt)

		if err := mainProducer.PublishDispatch(ctx, rm.Dispatch); err != nil {
			log.Warn("retryrelay: republish error, leaving uncommitted for redelivery",
				zap.String("dispatch_id", rm.Dispatch.ID), zap.Error(err))
			continue
		}

		if err := commit(ctx); err != nil {
			log.Warn("retryrelay: commit error", zap.String("dispatch_id", rm.Dispatch.ID), zap.Error(err))
		}
	}

	log.Info("retryrelay: shutting down")
}

func waitUntilDue(ctx context.Context, nextRetryAtMs int64) {
	due := time.UnixMilli(nextRetryAtMs)
	d := time.Until(due)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
